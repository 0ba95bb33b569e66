// Package kafka provides the Kafka connection used as a messaging transport,
// built on franz-go.
//
// Records carry the encoded message as their value and no key. There is no
// consumer group: each gateway consumes every partition from the end of the
// log, so a message published by one instance reaches all of them.
package kafka
