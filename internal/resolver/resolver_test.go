package resolver

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"reelgrab/internal/retriever"
)

// scriptedSession fakes the automation surface: clicking the download
// trigger deposits a file into dropDir, mimicking the external service
// pushing output into the session's download directory.
type scriptedSession struct {
	ops []string

	dropDir      string
	dropName     string
	failClickSel map[string]error
	failWaitSel  map[string]error
	html         string
	scrolls      int
}

func (s *scriptedSession) record(op string) { s.ops = append(s.ops, op) }

func (s *scriptedSession) Navigate(_ context.Context, url string) error {
	s.record("navigate:" + url)
	return nil
}

func (s *scriptedSession) WaitVisible(_ context.Context, sel string) error {
	s.record("wait:" + sel)
	if err, ok := s.failWaitSel[sel]; ok {
		return err
	}
	return nil
}

func (s *scriptedSession) Click(_ context.Context, sel string) error {
	s.record("click:" + sel)
	if err, ok := s.failClickSel[sel]; ok {
		return err
	}
	if sel == videoTriggerSel || sel == photoTriggerSel {
		if s.dropDir != "" && s.dropName != "" {
			if err := os.WriteFile(filepath.Join(s.dropDir, s.dropName), []byte("media"), 0o644); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *scriptedSession) SetValue(_ context.Context, sel, _ string) error {
	s.record("setvalue:" + sel)
	return nil
}

func (s *scriptedSession) TypeChars(_ context.Context, sel, _ string, _ time.Duration) error {
	s.record("type:" + sel)
	return nil
}

func (s *scriptedSession) SubmitEnter(_ context.Context, sel string) error {
	s.record("enter:" + sel)
	return nil
}

func (s *scriptedSession) ScrollBottom(context.Context) error {
	s.scrolls++
	s.record("scroll")
	return nil
}

func (s *scriptedSession) OuterHTML(context.Context) (string, error) {
	s.record("html")
	if s.html == "" {
		return "", errors.New("page gone")
	}
	return s.html, nil
}

func (s *scriptedSession) SetDownloadDir(_ context.Context, dir string) error {
	s.record("downloaddir:" + dir)
	return nil
}

func (s *scriptedSession) Close() { s.record("close") }

func fastConfig() Config {
	return Config{
		PageSettle:   time.Millisecond,
		SubmitSettle: time.Millisecond,
		FetchSettle:  time.Millisecond,
		ScrollSettle: time.Millisecond,
		TypePace:     time.Microsecond,
	}
}

func videoItem() retriever.Item {
	return retriever.Item{
		ID:    "123",
		Link:  "https://www.tiktok.com/@a/video/123",
		Kind:  retriever.KindVideo,
		Owner: "a",
	}
}

func TestResolve_VideoSuccess(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	ses := &scriptedSession{dropDir: dir, dropName: "clip.mp4"}
	r := New(fastConfig(), nil)

	files, err := r.Resolve(context.Background(), ses, videoItem(), dir)
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(dir, "clip.mp4")}, files)

	require.Contains(t, ses.ops, "downloaddir:"+dir)
	require.Contains(t, ses.ops, "navigate:"+defaultVideoServiceURL)
	require.Contains(t, ses.ops, "setvalue:"+videoInputSel)
	require.Contains(t, ses.ops, "click:"+videoSubmitSel)
	require.Contains(t, ses.ops, "click:"+videoTriggerSel)
}

func TestResolve_FailsWhenNoFileDeposited(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	ses := &scriptedSession{} // trigger click deposits nothing
	r := New(fastConfig(), nil)

	_, err := r.Resolve(context.Background(), ses, videoItem(), dir)
	require.Error(t, err)
	require.Contains(t, err.Error(), "no new file")
}

func TestResolve_IgnoresPartialDownloads(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	ses := &scriptedSession{dropDir: dir, dropName: "clip.mp4.crdownload"}
	r := New(fastConfig(), nil)

	_, err := r.Resolve(context.Background(), ses, videoItem(), dir)
	require.Error(t, err)
}

func TestResolve_VideoTriggerTimeout(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	ses := &scriptedSession{
		failWaitSel: map[string]error{videoTriggerSel: errors.New("timeout waiting for node")},
	}
	r := New(fastConfig(), nil)

	_, err := r.Resolve(context.Background(), ses, videoItem(), dir)
	require.Error(t, err)
	require.Contains(t, err.Error(), "video fetch")
}

func TestResolve_PhotoFallsBackToKeyboardSubmit(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	ses := &scriptedSession{
		dropDir:      dir,
		dropName:     "set.zip",
		failClickSel: map[string]error{photoSubmitSel: errors.New("node not found")},
	}
	r := New(fastConfig(), nil)

	item := retriever.Item{ID: "9", Link: "https://www.tiktok.com/@a/photo/9", Kind: retriever.KindPhoto, Owner: "a"}
	files, err := r.Resolve(context.Background(), ses, item, dir)
	require.NoError(t, err)
	require.Len(t, files, 1)

	require.Contains(t, ses.ops, "type:"+photoInputSel)
	require.Contains(t, ses.ops, "enter:"+photoInputSel)
	require.Contains(t, ses.ops, "click:"+photoTriggerSel)
}

const profileHTML = `<html><body>
<a href="/@creator/video/111?src=grid">one</a>
<a href="https://www.tiktok.com/@creator/photo/222?src=grid">two</a>
<a href="/@creator/video/111">duplicate</a>
<a href="/about">not content</a>
</body></html>`

func TestEnumerate_DedupsAndCompletesAllScrolls(t *testing.T) {
	t.Parallel()
	ses := &scriptedSession{html: profileHTML}
	r := New(fastConfig(), nil)

	links := r.Enumerate(context.Background(), ses, "creator", 3)
	require.Equal(t, []string{
		"https://www.tiktok.com/@creator/video/111",
		"https://www.tiktok.com/@creator/photo/222",
	}, links)
	// A static DOM must not cause an early exit.
	require.Equal(t, 3, ses.scrolls)
}

func TestEnumerate_PartialOnFailure(t *testing.T) {
	t.Parallel()
	ses := &scriptedSession{} // OuterHTML fails
	r := New(fastConfig(), nil)

	links := r.Enumerate(context.Background(), ses, "@creator", 3)
	require.Empty(t, links)
	require.Contains(t, ses.ops, "navigate:https://www.tiktok.com/@creator")
}

func TestExtractItemLinks_ResolvesRelative(t *testing.T) {
	t.Parallel()
	links := extractItemLinks(profileHTML, "https://www.tiktok.com/@creator")
	require.Equal(t, []string{
		"https://www.tiktok.com/@creator/video/111",
		"https://www.tiktok.com/@creator/photo/222",
		"https://www.tiktok.com/@creator/video/111",
	}, links)
}
