/*
Package transport is the batching and delivery pipeline shared by the span,
log and metric signals.

# Overview

Each signal owns one Batcher feeding one Sender:

	Add(record) -> buffer -> Flush -> {"spans": [...]} -> [encrypt] -> [gzip] -> POST

A flush happens when the buffer reaches the batch size (in the background,
never blocking the caller of Add), on every flush interval tick, and once more
on Close. Flush swaps the buffer out before the network call; records that
arrive meanwhile land in a fresh buffer. If the POST fails the batch is put back
in front of them, so retries are purely requeue based and unbounded.

# Encryption

With a public key configured, every flush generates a fresh 256-bit key and
96-bit nonce, seals the batch with AES-256-GCM (or ChaCha20-Poly1305), wraps the
key with RSA-OAEP-SHA256 and sends

	{"encryptedKey": "...", "iv": "...", "authTag": "...", "data": "..."}

with Content-Type application/json+encrypted.

# Usage

	sender, err := transport.NewSender(transport.SenderConfig{
		Endpoint: "https://loggy.dev/api/traces/ingest",
		Token:    token,
	})
	batcher := transport.NewBatcher[SpanData](sender, transport.BatcherConfig{
		Signal:    "spans",
		BatchSize: 100,
	})
	batcher.Start()
	defer batcher.Close(ctx)
*/
package transport
