// Package gemini implements generation.Model on Google's Gemini API through
// the genai client.
//
// The adapter asks for JSON output, concatenates the text parts of the first
// candidate, and translates the API's failure modes into generation errors:
// safety blocks become generation.ErrContentBlocked, empty or truncated
// candidates become generation.ErrInvalidResponse, and rate limits or server
// errors become generation.ErrTransientFailure. Retrying is left to the
// caller's generation.Retry.
package gemini
