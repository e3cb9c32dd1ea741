package core

import (
	"fmt"
)

// previewURLLocked derives the deployed-app URL for the loaded app. The
// deploy key wins when present; otherwise the path is derived from the
// generation kind and app id.
func (s *Session) previewURLLocked() string {
	app := s.app
	if app == nil {
		return ""
	}
	if app.DeployKey != "" {
		return fmt.Sprintf("%s%s/%s/", s.cfg.BaseURL, s.cfg.StaticPrefix, app.DeployKey)
	}
	return fmt.Sprintf("%s%s/%s_%s/", s.cfg.BaseURL, s.cfg.StaticPrefix, app.CodeGenType, app.ID)
}

// refreshedPreviewURLLocked stamps a cache-busting timestamp onto the
// preview URL. Used when a generation or build lands new content behind
// an unchanged path.
func (s *Session) refreshedPreviewURLLocked() string {
	base := s.previewURLLocked()
	if base == "" {
		return ""
	}
	return fmt.Sprintf("%s?t=%d", base, s.now().UnixMilli())
}
