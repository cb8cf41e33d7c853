package model

import "encoding/json"

// CommonSecret is a named secret that can protect many entities. Locks
// created from it copy its salt and hash.
type CommonSecret struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	SecretKind SecretKind `json:"lockType"`
	Salt       string     `json:"salt"`
	Hash       string     `json:"hash"`
	CreatedAt  int64      `json:"createdAt"`
	UpdatedAt  int64      `json:"updatedAt"`
}

// Settings is the engine-relevant part of the "settings" blob. Keys owned by
// the UI are kept in Extra and written back untouched.
type Settings struct {
	TreeCountdownEnabled    bool
	SearchHideLockedEnabled bool
	CommonSecrets           []CommonSecret
	Extra                   map[string]json.RawMessage
}

const (
	settingTreeCountdown = "treeCountdownEnabled"
	settingSearchHide    = "searchHideLockedEnabled"
	settingCommonSecrets = "commonSecrets"
)

// DefaultSettings returns the settings used when nothing is persisted.
func DefaultSettings() Settings {
	return Settings{
		TreeCountdownEnabled:    true,
		SearchHideLockedEnabled: false,
	}
}

// Clone returns a deep copy.
func (s Settings) Clone() Settings {
	out := s
	out.CommonSecrets = append([]CommonSecret(nil), s.CommonSecrets...)
	if s.Extra != nil {
		out.Extra = make(map[string]json.RawMessage, len(s.Extra))
		for k, v := range s.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// MarshalJSON merges the known fields over the preserved UI keys.
func (s Settings) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(s.Extra)+3)
	for k, v := range s.Extra {
		out[k] = v
	}
	out[settingTreeCountdown] = s.TreeCountdownEnabled
	out[settingSearchHide] = s.SearchHideLockedEnabled
	secrets := s.CommonSecrets
	if secrets == nil {
		secrets = []CommonSecret{}
	}
	out[settingCommonSecrets] = secrets
	return json.Marshal(out)
}

// UnmarshalJSON is lenient: wrongly typed flags keep their defaults and a
// malformed commonSecrets list is left for the caller to normalize.
func (s *Settings) UnmarshalJSON(data []byte) error {
	*s = DefaultSettings()
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.Extra = make(map[string]json.RawMessage)
	for k, v := range raw {
		switch k {
		case settingTreeCountdown:
			var b bool
			if json.Unmarshal(v, &b) == nil {
				s.TreeCountdownEnabled = b
			}
		case settingSearchHide:
			var b bool
			if json.Unmarshal(v, &b) == nil {
				s.SearchHideLockedEnabled = b
			}
		case settingCommonSecrets:
			var items []json.RawMessage
			if json.Unmarshal(v, &items) != nil {
				continue
			}
			for _, item := range items {
				var cs CommonSecret
				if json.Unmarshal(item, &cs) == nil {
					s.CommonSecrets = append(s.CommonSecrets, cs)
				}
			}
		default:
			s.Extra[k] = v
		}
	}
	return nil
}
