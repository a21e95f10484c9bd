// Package feed provides pull-based data origins for analysis pipelines.
//
// An Iterator yields one value per Next call and reports exhaustion with
// ok == false. Iterators are lazy: nothing is read until a value is pulled,
// so a Source stage in the engine controls the pace of its feed.
//
//   - FromSlice replays an in-memory slice
//   - FromChannel drains a channel until it is closed
//   - FromFunc pulls from a generator function
//   - CSV decodes records from a CSV stream
//
// Usage:
//
//	bars := feed.CSV(file, parseBar, feed.WithHeader())
//	all, err := feed.Collect(ctx, bars)
package feed
