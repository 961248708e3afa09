package dispatch

import (
	"github.com/kinfkong/modern-mgo/bson"
	"github.com/kinfkong/modern-mgo/internal/project"
)

func projectAll(docs []*bson.Document, spec *bson.Document) ([]*bson.Document, error) {
	out := make([]*bson.Document, len(docs))
	for i, d := range docs {
		p, err := project.Apply(d, spec)
		if err != nil {
			return nil, err
		}
		out[i] = p
	}
	return out, nil
}

func applySkip(docs []*bson.Document, skip int) []*bson.Document {
	if skip <= 0 || skip >= len(docs) {
		if skip >= len(docs) {
			return nil
		}
		return docs
	}
	return docs[skip:]
}

func applyLimit(docs []*bson.Document, limit int) []*bson.Document {
	if limit <= 0 || limit >= len(docs) {
		return docs
	}
	return docs[:limit]
}
