package server

import (
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Field names used inside structpb.Struct messages.
const (
	fieldKey      = "key"
	fieldValue    = "value"
	fieldExpected = "expected"
	fieldTTLMs    = "ttl_ms"
	fieldFound    = "found"
)

// NewSetRequest builds the message for Coord/SetIfAbsent and Cache/Set.
func NewSetRequest(key, value string, ttl time.Duration) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldKey:   structpb.NewStringValue(key),
		fieldValue: structpb.NewStringValue(value),
		fieldTTLMs: structpb.NewNumberValue(float64(ttl.Milliseconds())),
	}}
}

// NewDeleteRequest builds the message for Coord/DeleteIfEqual.
func NewDeleteRequest(key, expected string) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldKey:      structpb.NewStringValue(key),
		fieldExpected: structpb.NewStringValue(expected),
	}}
}

// NewLookupResponse builds the reply of Cache/Get and Cache/Fetch.
func NewLookupResponse(value string, found bool) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldValue: structpb.NewStringValue(value),
		fieldFound: structpb.NewBoolValue(found),
	}}
}

// ParseLookupResponse reads a reply built by NewLookupResponse.
func ParseLookupResponse(s *structpb.Struct) (string, bool) {
	return stringField(s, fieldValue), s.GetFields()[fieldFound].GetBoolValue()
}

func stringField(s *structpb.Struct, name string) string {
	return s.GetFields()[name].GetStringValue()
}

func requireKey(s *structpb.Struct) (string, error) {
	key := stringField(s, fieldKey)
	if key == "" {
		return "", status.Error(codes.InvalidArgument, "key cannot be empty")
	}
	return key, nil
}

// ttlField reads ttl_ms. Zero or negative means no expiry.
func ttlField(s *structpb.Struct) time.Duration {
	ms := s.GetFields()[fieldTTLMs].GetNumberValue()
	if ms <= 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}

// leaseField reads ttl_ms and requires it to be positive.
func leaseField(s *structpb.Struct) (time.Duration, error) {
	ttl := ttlField(s)
	if ttl <= 0 {
		return 0, status.Error(codes.InvalidArgument, "ttl_ms must be positive")
	}
	return ttl, nil
}
