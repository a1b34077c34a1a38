package registry

import "strings"

// ViewerProfile describes how to launch and recognise one external viewer.
type ViewerProfile struct {
	ID             string   `yaml:"id" json:"id"`
	Name           string   `yaml:"name" json:"name"`
	Executable     string   `yaml:"executable" json:"executable"`
	WindowTitle    string   `yaml:"window_title" json:"window_title"`
	StartupScripts []string `yaml:"startup_scripts,omitempty" json:"startup_scripts"`
	Modes          []Mode   `yaml:"modes,omitempty" json:"modes"`
	Notes          string   `yaml:"notes,omitempty" json:"notes,omitempty"`
}

// Mode is one way of opening a file in the viewer, selected by the caller
// or by the file extension.
type Mode struct {
	Name       string   `yaml:"name" json:"name"`
	Flag       string   `yaml:"flag" json:"flag"`
	Extensions []string `yaml:"extensions,omitempty" json:"extensions"`
}

// Mode returns the mode called name.
func (p *ViewerProfile) Mode(name string) (Mode, bool) {
	for _, m := range p.Modes {
		if m.Name == name {
			return m, true
		}
	}
	return Mode{}, false
}

// ModeForExt returns the mode that opens files with extension ext
// (including the dot, any case).
func (p *ViewerProfile) ModeForExt(ext string) (Mode, bool) {
	for _, m := range p.Modes {
		for _, e := range m.Extensions {
			if strings.EqualFold(e, ext) {
				return m, true
			}
		}
	}
	return Mode{}, false
}
