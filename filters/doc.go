// Package filters provides ready-made pipeline stages built on
// engine.BaseFilter.
//
// Stages are generic over the payload type they consume. A message whose
// payload has a different type fails the stage with an INVALID_INPUT cause.
//
//	src := filters.Source("bars", feed.FromSlice(bars))
//	valid := filters.Scan("valid", func(b Bar) bool { return b.Volume > 0 })
//	mean := filters.Window("sma", 20, Bar.CloseFloat, filters.Mean)
//	sink := filters.Collect[filters.Stat[Bar]]("report")
//	e.AddPipeline("AAPL").Add(src, valid, mean, sink)
package filters
