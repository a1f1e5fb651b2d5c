/*
Package loggy is the public entry point of the SDK.

A Client owns a Tracer, a remote logger and a request metrics recorder that
share one configuration and one delivery pipeline. Each signal is batched
and POSTed to its own endpoint; a failed flush keeps the batch for the next
attempt.

	client, err := loggy.NewFromEnv()
	if err != nil {
		log.Fatal(err)
	}
	defer client.Shutdown(context.Background())

	router := gin.New()
	router.Use(client.Middleware()...)
	router.GET("/metrics", client.MetricsHandler())

	ctx, span := client.Tracer().StartSpan(ctx, "charge-card")
	defer span.End()

Without a token nothing leaves the process, but spans are still created,
linked and propagated through traceparent headers.
*/
package loggy
