// Package bootstrap runs an application's lifecycle around a component
// registry.
//
// NewApp validates the typed configuration and sets up logging. Run then
// calls the OnConfigure callbacks, starts every registered component, runs
// the OnStart and OnReady hooks and prints a startup summary before waiting
// for a signal. Shutdown runs the OnStop hooks and stops components in
// reverse registration order.
//
//	app, err := bootstrap.NewApp(cfg)
//	if err != nil {
//	    return err
//	}
//	app.OnConfigure(func(ctx context.Context, app *bootstrap.App[*Config]) error {
//	    return app.RegisterComponent(eng)
//	})
//	return app.RunTask(ctx, work)
package bootstrap
