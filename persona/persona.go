// Package persona loads specialist role definitions: a markdown profile per
// role supplying the system prompt, plus a yaml runtime configuration.
// Profiles are loaded once per session and treated as immutable input.
package persona

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Profile is a parsed specialist definition. FullText is the complete
// markdown document and serves as the role's system prompt; the structured
// fields exist for display and routing.
type Profile struct {
	Name           string
	Skills         []string
	Personality    []string
	Specialization string
	FullText       string
}

// SystemPrompt returns the system prompt for the role.
func (p *Profile) SystemPrompt() string { return p.FullText }

// ParseProfile parses the hybrid markdown structure:
//
//	# <Name>
//	## Skills
//	- <bullet>
//	## Personality
//	- <bullet>
//	## Specialization
//	<one line>
//
// Unknown sections are ignored; only the top-level name is mandatory.
func ParseProfile(content string) (*Profile, error) {
	p := &Profile{FullText: content}
	section := ""

	for _, line := range strings.Split(content, "\n") {
		stripped := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(stripped, "# ") && p.Name == "":
			p.Name = strings.TrimSpace(stripped[2:])
		case strings.HasPrefix(stripped, "## Skills"):
			section = "skills"
		case strings.HasPrefix(stripped, "## Personality"):
			section = "personality"
		case strings.HasPrefix(stripped, "## Specialization"):
			section = "specialization"
		case strings.HasPrefix(stripped, "##"):
			section = ""
		case strings.HasPrefix(stripped, "- ") && section == "skills":
			p.Skills = append(p.Skills, strings.TrimSpace(stripped[2:]))
		case strings.HasPrefix(stripped, "- ") && section == "personality":
			p.Personality = append(p.Personality, strings.TrimSpace(stripped[2:]))
		case stripped != "" && section == "specialization" && !strings.HasPrefix(stripped, "#"):
			p.Specialization = stripped
			section = ""
		}
	}

	if p.Name == "" {
		return nil, fmt.Errorf("persona: definition must have a name (# header)")
	}
	return p, nil
}

// LoadProfile reads and parses a single markdown definition file.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("persona: read %s: %w", path, err)
	}
	return ParseProfile(string(data))
}

// LoadProfiles parses every *.md file in a directory, keyed by profile name.
func LoadProfiles(dir string) (map[string]*Profile, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.md"))
	if err != nil {
		return nil, err
	}
	profiles := make(map[string]*Profile, len(paths))
	for _, path := range paths {
		p, err := LoadProfile(path)
		if err != nil {
			return nil, err
		}
		profiles[p.Name] = p
	}
	return profiles, nil
}
