// Package functions declares the tools the live tutor may call during a
// conversation.
package functions

import "google.golang.org/genai"

// GetCustomTajweedRulesName is the function name the model calls to read the
// student's personal Tajweed emphases.
const GetCustomTajweedRulesName = "GetCustomTajweedRules"

// GetCustomTajweedRulesFunctionDeclaration describes the rules lookup tool.
func GetCustomTajweedRulesFunctionDeclaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        GetCustomTajweedRulesName,
		Description: "Returns the custom Tajweed rules the student has saved. Call this before giving Tajweed corrections so your feedback follows the student's chosen emphases. Returns an empty string when the student saved none.",
		Parameters: &genai.Schema{
			Type:       genai.TypeObject,
			Properties: map[string]*genai.Schema{},
		},
	}
}
