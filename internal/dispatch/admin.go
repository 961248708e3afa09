package dispatch

import (
	"time"

	"github.com/kinfkong/modern-mgo/bson"
	"github.com/kinfkong/modern-mgo/internal/config"
	"github.com/kinfkong/modern-mgo/internal/mongoerr"
)

// hello builds the hello/isMaster response, shaped by the deployment
// profile per spec.md §6: standalone omits replica-set fields entirely;
// singleNodeReplicaSet adds setName/hosts/primary/topologyVersion and
// reports itself as the (only) primary.
func (d *Dispatcher) hello() *bson.Document {
	fields := []bson.Pair{
		bson.P("ismaster", bson.Bool(true)),
		bson.P("maxBsonObjectSize", bson.Int32(16777216)),
		bson.P("maxMessageSizeBytes", bson.Int32(48000000)),
		bson.P("maxWriteBatchSize", bson.Int32(100000)),
		bson.P("localTime", bson.DateTime(time.Now())),
		bson.P("maxWireVersion", bson.Int32(17)),
		bson.P("minWireVersion", bson.Int32(0)),
		bson.P("readOnly", bson.Bool(false)),
	}

	if d.profile == config.SingleNodeReplicaSet {
		fields = append(fields,
			bson.P("setName", bson.String(d.replicaSetName)),
			bson.P("hosts", bson.Array([]bson.Value{bson.String("localhost:27017")})),
			bson.P("primary", bson.String("localhost:27017")),
			bson.P("secondary", bson.Bool(false)),
			bson.P("topologyVersion", bson.Doc(bson.DocFromPairs(
				bson.P("processId", bson.NewObjectId()),
				bson.P("counter", bson.Int64(0)),
			))),
		)
	}

	return okResponse(fields...)
}

// validateReadPreference enforces spec.md §6's rule that
// singleNodeReplicaSet rejects any read preference other than primary.
func (d *Dispatcher) validateReadPreference(cmd *bson.Document) error {
	if d.profile != config.SingleNodeReplicaSet {
		return nil
	}
	rp, ok := docField(cmd, "$readPreference")
	if !ok {
		return nil
	}
	mode, ok := stringField(rp, "mode")
	if ok && mode != "" && mode != "primary" {
		return mongoerr.BadValue("read preference %q is not supported by a singleNodeReplicaSet deployment", mode)
	}
	return nil
}

func (d *Dispatcher) buildInfo() *bson.Document {
	return okResponse(
		bson.P("version", bson.String("7.0.0-mongomem")),
		bson.P("versionArray", bson.Array([]bson.Value{bson.Int32(7), bson.Int32(0), bson.Int32(0), bson.Int32(0)})),
		bson.P("gitVersion", bson.String("mongomem")),
		bson.P("bits", bson.Int32(64)),
		bson.P("maxBsonObjectSize", bson.Int32(16777216)),
	)
}

// getParameter answers the handful of parameters this engine understands;
// anything else is reported unset rather than failing, matching a real
// server's behavior for unknown parameter names under getParameter: 1.
func (d *Dispatcher) getParameter(cmd *bson.Document) (*bson.Document, error) {
	fields := []bson.Pair{}
	if v, ok := cmd.Get("featureCompatibilityVersion"); ok && v.Truthy() {
		fields = append(fields, bson.P("featureCompatibilityVersion", bson.Doc(bson.DocFromPairs(
			bson.P("version", bson.String("7.0")),
		))))
	}
	return okResponse(fields...), nil
}
