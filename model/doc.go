// Package model defines the provider‑agnostic boundary to the external
// language model layer.
//
// Core goals:
//   - Unify streaming + non‑streaming generation behind a single interface
//   - Normalize tool / function call representation (ToolDefinition, FunctionCall parts)
//   - Keep request/response shapes minimal and transport independent
//   - Facilitate deterministic tests (ScriptedModel)
//
// Providers (OpenAI, Anthropic) implement Model in sub-packages so the turn
// executor and the tool loop remain decoupled from vendor SDKs.
package model
