// Package sse streams engine events to HTTP clients as Server-Sent Events.
//
// Events are published on topics such as "orders:AAPL" or "engine". Each
// client subscribes with a glob pattern matched against the topic, so
// "orders:*" follows every fill and "*" follows everything.
//
//	hub := sse.NewHub(log)
//	go hub.Run()
//	router.GET("/events", sse.Handler(hub, 30*time.Second))
//	hub.Publish("orders:AAPL", sse.EventOrder, order)
package sse
