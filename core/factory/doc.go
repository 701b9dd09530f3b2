// Package factory provides a small generic registry used to instantiate
// pluggable backends from configuration. A backend is selected by a type
// string plus a map of raw settings; factories decode the settings into
// typed structs and return the concrete implementation.
//
// The metrics sinks use it like this:
//
//	reg := factory.NewRegistry[metrics.Sink]()
//	reg.Register("influx", func(conf map[string]any) (metrics.Sink, error) {
//	    var c struct{ URL string `json:"url"` }
//	    if err := factory.Decode(conf, &c); err != nil {
//	        return nil, err
//	    }
//	    return metrics.NewInfluxSink(c.URL)
//	})
//	sink, err := reg.Create(factory.ModuleConfig{Type: "influx", Conf: map[string]any{"url": u}})
package factory
