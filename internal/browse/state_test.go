package browse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/tracker/internal/models"
)

func sampleIssues() []*models.Issue {
	return []*models.Issue{
		{ID: "i1", Summary: "Login fails", Status: models.IssueStatusNew, Type: models.IssueTypeBug},
		{ID: "i2", Summary: "Dark mode", Status: models.IssueStatusInDevelopment, Type: models.IssueTypeFeature,
			Attachments: []*models.Attachment{
				{ID: "a1", IssueID: "i2", FileName: "mock.png", MediaType: "image/png"},
				{ID: "a2", IssueID: "i2", FileName: "spec.pdf", MediaType: "application/pdf"},
			}},
		{ID: "i3", Summary: "Refactor store", Status: models.IssueStatusResolved, Type: models.IssueTypeTask},
	}
}

func TestNewState_DefaultSelection(t *testing.T) {
	tests := []struct {
		name     string
		issues   []*models.Issue
		deepLink string
		want     string
	}{
		{"first issue", sampleIssues(), "", "i1"},
		{"deep link", sampleIssues(), "i3", "i3"},
		{"unknown deep link", sampleIssues(), "nope", "i1"},
		{"empty list", nil, "i3", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewState(tt.issues, tt.deepLink)
			assert.Equal(t, tt.want, s.DeepLink())
			if tt.want == "" {
				assert.Nil(t, s.Selected())
				assert.Equal(t, -1, s.SelectedIndex())
			}
		})
	}
}

func TestState_SelectAndMove(t *testing.T) {
	s := NewState(sampleIssues(), "")

	assert.True(t, s.Select("i2"))
	assert.Equal(t, "i2", s.DeepLink())
	assert.False(t, s.Select("ghost"))
	assert.Equal(t, "i2", s.DeepLink())

	s.Move(10)
	assert.Equal(t, "i3", s.DeepLink())
	s.Move(-10)
	assert.Equal(t, "i1", s.DeepLink())
	s.Move(1)
	assert.Equal(t, 1, s.SelectedIndex())
}

func TestState_ApplyUpdated(t *testing.T) {
	s := NewState(sampleIssues(), "")
	s.ApplyUpdated(&models.Issue{ID: "i1", Summary: "Login fails", Status: models.IssueStatusReady})
	assert.Equal(t, models.IssueStatusReady, s.Selected().Status)

	s.ApplyUpdated(&models.Issue{ID: "ghost"})
	assert.Len(t, s.Issues(), 3)
}

func TestState_AppendCreated(t *testing.T) {
	s := NewState(nil, "")
	s.AppendCreated(&models.Issue{ID: "n1", Summary: "New one"})
	assert.Equal(t, "n1", s.DeepLink(), "first created issue becomes the selection")

	s.AppendCreated(&models.Issue{ID: "n2"})
	s.AppendCreated(&models.Issue{ID: "n2"})
	require.Len(t, s.Issues(), 2)
	assert.Equal(t, "n2", s.Issues()[1].ID)
	assert.Equal(t, "n1", s.DeepLink())
}

func TestState_Viewer(t *testing.T) {
	s := NewState(sampleIssues(), "i1")
	assert.False(t, s.OpenViewer(0), "issue without attachments")

	s.Select("i2")
	require.True(t, s.OpenViewer(0))
	assert.Equal(t, "a1", s.Viewer().Attachment.ID)

	s.CycleViewer()
	assert.Equal(t, "a2", s.Viewer().Attachment.ID)
	s.CycleViewer()
	assert.Equal(t, "a1", s.Viewer().Attachment.ID)

	s.Select("i3")
	assert.False(t, s.Viewer().Open, "changing selection closes the viewer")

	s.Select("i2")
	s.OpenViewer(1)
	s.CloseViewer()
	assert.False(t, s.Viewer().Open)
}

func TestState_RemoveAttachment(t *testing.T) {
	s := NewState(sampleIssues(), "i2")
	require.True(t, s.OpenViewer(0))

	s.RemoveAttachment("i2", "a1")

	assert.False(t, s.Viewer().Open)
	require.Len(t, s.Selected().Attachments, 1)
	assert.Equal(t, "a2", s.Selected().Attachments[0].ID)

	s.RemoveAttachment("i2", "a1")
	assert.Len(t, s.Selected().Attachments, 1)
}

func TestState_SetFilter(t *testing.T) {
	s := NewState(sampleIssues(), "i1")

	s.SetFilter(func(issue *models.Issue) bool { return issue.ID != "i1" })
	require.Len(t, s.Issues(), 2)
	assert.Len(t, s.All(), 3)
	assert.Equal(t, "i2", s.DeepLink(), "hidden selection moves to the first visible issue")
	assert.Equal(t, 0, s.SelectedIndex())

	s.Move(5)
	assert.Equal(t, "i3", s.DeepLink())

	s.SetFilter(nil)
	assert.Len(t, s.Issues(), 3)
	assert.Equal(t, "i3", s.DeepLink(), "clearing the filter keeps the selection")
	assert.Equal(t, 2, s.SelectedIndex())
}

func TestFuzzyFilter(t *testing.T) {
	assert.Nil(t, fuzzyFilter("  "))

	match := fuzzyFilter("drkmd")
	require.NotNil(t, match)
	var got []string
	for _, issue := range sampleIssues() {
		if match(issue) {
			got = append(got, issue.ID)
		}
	}
	assert.Equal(t, []string{"i2"}, got)

	assert.True(t, fuzzyFilter("I3")(&models.Issue{ID: "i3", Summary: "zzz"}), "id prefix matches")
}
