package kafka

import (
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/propagation"
)

// headers adapts a message's header slice to an otel TextMapCarrier.
// Set replaces an existing key instead of appending a duplicate.
type headers struct{ hs *[]kafka.Header }

var _ propagation.TextMapCarrier = headers{}

func carrier(hs *[]kafka.Header) headers { return headers{hs: hs} }

func (h headers) Get(k string) string {
	for _, x := range *h.hs {
		if x.Key == k {
			return string(x.Value)
		}
	}
	return ""
}

func (h headers) Set(k, v string) {
	for i := range *h.hs {
		if (*h.hs)[i].Key == k {
			(*h.hs)[i].Value = []byte(v)
			return
		}
	}
	*h.hs = append(*h.hs, kafka.Header{Key: k, Value: []byte(v)})
}

func (h headers) Keys() []string {
	ks := make([]string, 0, len(*h.hs))
	for _, x := range *h.hs {
		ks = append(ks, x.Key)
	}
	return ks
}
