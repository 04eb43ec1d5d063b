package subscription

import "encoding/json"

func DecodeStripeEvent(id, eventType string, raw json.RawMessage) (Event, error) {
	return decodeStripeEvent(id, eventType, raw)
}

func DecodePaddleEvent(payload []byte) (Event, error) {
	return decodePaddleEvent(payload)
}
