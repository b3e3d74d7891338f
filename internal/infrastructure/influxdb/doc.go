// Package influxdb mirrors coop telemetry into InfluxDB v2.
//
// It wraps the official influxdb-client-go v2 library. Every reading
// appended to the reading log and every accepted status change can be
// mirrored as a point:
//
//	coop_reading,site=<site id>,channel=temperature value=71.5
//	coop_status,site=<site id>,device=coop-door,source=bus state="open"
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB, influxdb.Options{Site: cfg.Site.ID})
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // mirror off
//	}
//	defer client.Close()
//
//	client.WriteReading("temperature", 71.5, time.Now())
//
// Writes are non-blocking and batched (batch_size, flush_interval).
// Batch failures arrive asynchronously via Options.OnError.
package influxdb
