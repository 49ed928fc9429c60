package drivers

import (
	"context"
	"math/big"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/pkg/errors"
)

const defaultStatsMeasurement = "shift_register_write"

// InfluxStats reports every register write to an InfluxDB bucket, one
// point per write. Useful to keep an eye on how often (and how slowly)
// the hardware gets hammered.
type InfluxStats struct {
	Host         string
	Organization string
	Bucket       string
	Measurement  string
	Token        string

	client   influxdb2.Client
	writeApi api.WriteAPIBlocking
	ready    bool
}

func (is *InfluxStats) Setup(ctx context.Context) error {
	if len(is.Measurement) == 0 {
		is.Measurement = defaultStatsMeasurement
	}

	is.client = influxdb2.NewClient(is.Host, is.Token)
	is.writeApi = is.client.WriteAPIBlocking(is.Organization, is.Bucket)

	ok, err := is.client.Ready(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to init InfluxStats reporter")
	}
	if !ok {
		return errors.Errorf("InfluxStats: influx at %s not ready", is.Host)
	}

	is.ready = true
	return nil
}

func (is *InfluxStats) IsReady() bool {
	return is.ready
}

// ReportWrite records one completed register write.
func (is *InfluxStats) ReportWrite(register string, value *big.Int, bits int, took time.Duration) error {
	if !is.ready {
		return errors.New("InfluxStats reporter not ready")
	}

	point := influxdb2.NewPoint(is.Measurement,
		map[string]string{
			"register": register,
		},
		map[string]interface{}{
			"value":   value.String(),
			"bits":    bits,
			"took_ms": took.Milliseconds(),
		},
		time.Now())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return errors.Wrap(is.writeApi.WritePoint(ctx, point), "failed to report write to influx")
}

func (is *InfluxStats) Close() error {
	is.ready = false
	if is.client != nil {
		is.client.Close()
	}
	return nil
}
