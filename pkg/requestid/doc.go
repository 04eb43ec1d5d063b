// Package requestid attaches a correlation id to every HTTP request.
//
// Middleware accepts an inbound X-Request-ID made of letters, digits, dashes
// and underscores (at most 128 characters) and generates a UUID otherwise.
// The id is stored in the request context and echoed in the response header.
//
// Register LoggerExtractor with the logger so the id shows up on every
// record logged with the request context:
//
//	log := logger.New(logger.WithContextExtractors(requestid.LoggerExtractor()))
package requestid
