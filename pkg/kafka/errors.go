package kafka

import "errors"

var (
	ErrNoBrokers      = errors.New("kafka: no brokers configured")
	ErrEmptyTopic     = errors.New("kafka: topic must not be empty")
	ErrProducerClosed = errors.New("kafka: producer is closed")
)
