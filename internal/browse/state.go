package browse

import (
	"github.com/joescharf/tracker/internal/models"
)

// Viewer is the media viewer: whether it is open and which attachment it
// shows.
type Viewer struct {
	Open       bool
	Attachment *models.Attachment
}

// State is the browser's view of the issue list. It holds no I/O; every
// transition is a plain method so it can be driven by tea messages and
// tested directly.
type State struct {
	issues     []*models.Issue
	selectedID string
	viewer     Viewer

	// match, when set, hides issues it rejects from Issues and Move.
	match func(*models.Issue) bool
}

// NewState builds the initial state. The deep-linked issue is selected
// when present in the list, otherwise the first issue. An empty list has
// no selection.
func NewState(issues []*models.Issue, deepLink string) *State {
	s := &State{issues: issues}
	if deepLink != "" && s.index(deepLink) >= 0 {
		s.selectedID = deepLink
	} else if len(issues) > 0 {
		s.selectedID = issues[0].ID
	}
	return s
}

func (s *State) index(id string) int {
	for i, issue := range s.issues {
		if issue.ID == id {
			return i
		}
	}
	return -1
}

// Issues returns the visible issues in display order.
func (s *State) Issues() []*models.Issue {
	if s.match == nil {
		return s.issues
	}
	visible := make([]*models.Issue, 0, len(s.issues))
	for _, issue := range s.issues {
		if s.match(issue) {
			visible = append(visible, issue)
		}
	}
	return visible
}

// All returns every issue regardless of the filter.
func (s *State) All() []*models.Issue { return s.issues }

// SetFilter hides issues rejected by match; nil shows every issue. A
// selection that becomes hidden moves to the first visible issue.
func (s *State) SetFilter(match func(*models.Issue) bool) {
	s.match = match
	visible := s.Issues()
	for _, issue := range visible {
		if issue.ID == s.selectedID {
			return
		}
	}
	if len(visible) > 0 {
		s.Select(visible[0].ID)
	}
}

// Selected returns the selected issue, or nil.
func (s *State) Selected() *models.Issue {
	if i := s.index(s.selectedID); i >= 0 {
		return s.issues[i]
	}
	return nil
}

// SelectedIndex returns the visible list position of the selection, or -1.
func (s *State) SelectedIndex() int {
	for i, issue := range s.Issues() {
		if issue.ID == s.selectedID {
			return i
		}
	}
	return -1
}

// DeepLink returns the id that reopens the browser on the current
// selection.
func (s *State) DeepLink() string { return s.selectedID }

// Viewer returns the media viewer state.
func (s *State) Viewer() Viewer { return s.viewer }

// Select makes id the selected issue. Unknown ids are ignored. Changing
// the selection closes the media viewer.
func (s *State) Select(id string) bool {
	if s.index(id) < 0 {
		return false
	}
	if id != s.selectedID {
		s.viewer = Viewer{}
	}
	s.selectedID = id
	return true
}

// Move shifts the selection by delta within the visible issues, clamped
// to the list bounds.
func (s *State) Move(delta int) {
	visible := s.Issues()
	if len(visible) == 0 {
		return
	}
	i := s.SelectedIndex() + delta
	if i < 0 {
		i = 0
	}
	if i >= len(visible) {
		i = len(visible) - 1
	}
	s.Select(visible[i].ID)
}

// ApplyUpdated replaces an issue with the server's confirmed copy.
func (s *State) ApplyUpdated(issue *models.Issue) {
	if i := s.index(issue.ID); i >= 0 {
		s.issues[i] = issue
	}
}

// AppendCreated adds a newly created issue to the end of the list. The
// first issue of an empty list becomes the selection.
func (s *State) AppendCreated(issue *models.Issue) {
	if s.index(issue.ID) >= 0 {
		return
	}
	s.issues = append(s.issues, issue)
	if s.selectedID == "" {
		s.selectedID = issue.ID
	}
}

// RemoveAttachment drops an attachment from its issue and closes the
// media viewer.
func (s *State) RemoveAttachment(issueID, attachmentID string) {
	if i := s.index(issueID); i >= 0 {
		issue := s.issues[i]
		kept := make([]*models.Attachment, 0, len(issue.Attachments))
		for _, a := range issue.Attachments {
			if a.ID != attachmentID {
				kept = append(kept, a)
			}
		}
		issue.Attachments = kept
	}
	s.viewer = Viewer{}
}

// OpenViewer shows the selected issue's attachment at position i.
func (s *State) OpenViewer(i int) bool {
	issue := s.Selected()
	if issue == nil || i < 0 || i >= len(issue.Attachments) {
		return false
	}
	s.viewer = Viewer{Open: true, Attachment: issue.Attachments[i]}
	return true
}

// CycleViewer moves the viewer to the next attachment, wrapping around.
func (s *State) CycleViewer() {
	issue := s.Selected()
	if !s.viewer.Open || issue == nil || len(issue.Attachments) == 0 {
		return
	}
	next := 0
	for i, a := range issue.Attachments {
		if a.ID == s.viewer.Attachment.ID {
			next = (i + 1) % len(issue.Attachments)
			break
		}
	}
	s.viewer.Attachment = issue.Attachments[next]
}

// CloseViewer hides the media viewer.
func (s *State) CloseViewer() { s.viewer = Viewer{} }
