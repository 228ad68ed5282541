// Package openaicompat implements provider.Provider for any backend that
// speaks the OpenAI Chat Completions protocol (OpenAI, vLLM, LiteLLM and
// similar proxies). It handles request serialization, response parsing,
// and mapping of HTTP and network failures to APIErrors.
package openaicompat
