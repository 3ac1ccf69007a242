// Package prompt builds the text actually sent to the agent from what the
// user typed and the dashboard's ambient context.
package prompt

import "fmt"

// FocalEntity is the asset the user is currently viewing.
type FocalEntity struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Category    string `yaml:"category" json:"category"`       // asset type
	Subcategory string `yaml:"subcategory" json:"subcategory"` // field
}

// IsZero reports whether no entity is set.
func (f *FocalEntity) IsZero() bool {
	return f == nil || (f.ID == "" && f.Name == "")
}

// Enrich prefixes raw with a bracketed context line. A focal entity takes
// precedence over the free-text chat context; with neither, raw is returned
// unchanged. The context line and raw are separated by a blank line.
func Enrich(raw string, focal *FocalEntity, chatContext string) string {
	switch {
	case !focal.IsZero():
		return fmt.Sprintf("[Context: User is viewing asset \"%s\" (%s) in %s]\n\n%s",
			focal.Name, focal.Category, focal.Subcategory, raw)
	case chatContext != "":
		return fmt.Sprintf("[Context: %s]\n\n%s", chatContext, raw)
	default:
		return raw
	}
}

// Suggestions returns starter queries for an empty conversation.
func Suggestions(focal *FocalEntity) []string {
	if !focal.IsZero() {
		return []string{
			fmt.Sprintf("What is the risk assessment for %s?", focal.Name),
			"Show maintenance history and operational data for this asset",
			"How does this asset connect to the broader network?",
		}
	}
	return []string{
		"Show me high-risk assets and explain the contributing factors",
		"Find cross-network synergies discovered by AutoGL and their operational impact",
		"Analyze pressure trends across SnowCore assets and flag anomalies",
		"What TeraField assets should be prioritized for integration based on AutoGL predictions?",
	}
}
