package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matheuspdias/managerclin/internal/directory"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []EmailMessage
	fail map[string]error
}

func (r *recordingSender) Send(_ context.Context, msg EmailMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail[msg.To]; err != nil {
		return err
	}
	r.sent = append(r.sent, msg)
	return nil
}

func testDirectory() *directory.Memory {
	dir := directory.NewMemory()
	dir.Put("org-1", directory.KindCustomer, directory.Contact{ID: "cust-1", Name: "Maria Silva", Email: "maria@example.com"})
	dir.Put("org-1", directory.KindCustomer, directory.Contact{ID: "cust-2", Name: "No Email"})
	dir.Put("org-1", directory.KindProvider, directory.Contact{ID: "prov-1", Name: "Dr. Ana", Email: "ana@example.com"})
	return dir
}

func TestSendJoinLink(t *testing.T) {
	sender := &recordingSender{}
	svc := NewService(sender, testDirectory(), nil)

	err := svc.SendJoinLink(context.Background(), JoinLinkNotice{
		OrgID: "org-1", SessionID: "s1", CustomerID: "cust-1", ProviderID: "prov-1",
		MeetingURL: "https://meet.example.com/clinic-abc", ScheduledFor: "2024-03-04 09:00",
	})
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "maria@example.com", sender.sent[0].To)
	assert.Contains(t, sender.sent[0].Body, "https://meet.example.com/clinic-abc")
	assert.Contains(t, sender.sent[0].Body, "Dr. Ana")
	assert.Contains(t, sender.sent[0].HTML, `href="https://meet.example.com/clinic-abc"`)
}

func TestSendJoinLink_EscapesHTML(t *testing.T) {
	dir := testDirectory()
	dir.Put("org-1", directory.KindCustomer, directory.Contact{ID: "cust-3", Name: `<a href="https://evil.example">Click</a>`, Email: "x@example.com"})
	dir.Put("org-1", directory.KindProvider, directory.Contact{ID: "prov-2", Name: "Dr. <b>Bold</b>", Email: "b@example.com"})
	sender := &recordingSender{}
	svc := NewService(sender, dir, nil)

	err := svc.SendJoinLink(context.Background(), JoinLinkNotice{
		OrgID: "org-1", CustomerID: "cust-3", ProviderID: "prov-2",
		MeetingURL: `https://meet.example.com/room?a=1&b="x"`,
	})
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)
	htmlBody := sender.sent[0].HTML
	assert.NotContains(t, htmlBody, `<a href="https://evil.example">`)
	assert.Contains(t, htmlBody, `&lt;a href=&#34;https://evil.example&#34;&gt;Click&lt;/a&gt;`)
	assert.Contains(t, htmlBody, "Dr. &lt;b&gt;Bold&lt;/b&gt;")
	assert.Contains(t, htmlBody, `href="https://meet.example.com/room?a=1&amp;b=&#34;x&#34;"`)
}

func TestSendJoinLink_MissingEmailIsDeliveryError(t *testing.T) {
	svc := NewService(&recordingSender{}, testDirectory(), nil)

	err := svc.SendJoinLink(context.Background(), JoinLinkNotice{OrgID: "org-1", CustomerID: "cust-2"})
	var derr *DeliveryError
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, "cust-2", derr.Recipient)
	assert.ErrorIs(t, err, ErrNoRecipient)
}

func TestSendJoinLink_UnknownCustomer(t *testing.T) {
	svc := NewService(&recordingSender{}, testDirectory(), nil)
	err := svc.SendJoinLink(context.Background(), JoinLinkNotice{OrgID: "org-1", CustomerID: "cust-9"})
	assert.ErrorIs(t, err, directory.ErrNotFound)
}

func TestSendSessionEnded_AttemptsEveryRecipient(t *testing.T) {
	sender := &recordingSender{fail: map[string]error{"maria@example.com": errors.New("bounced")}}
	svc := NewService(sender, testDirectory(), nil)

	err := svc.SendSessionEnded(context.Background(), SessionEndedNotice{
		OrgID: "org-1", SessionID: "s1", CustomerID: "cust-1", ProviderID: "prov-1",
		Reason: "insufficient_credits", DurationMinutes: 61, EndedAt: time.Date(2024, 3, 4, 10, 1, 0, 0, time.UTC),
	})
	var derr *DeliveryError
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, "cust-1", derr.Recipient)

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "ana@example.com", sender.sent[0].To)
	assert.Contains(t, sender.sent[0].Body, "ran out of telemedicine credits")
	assert.Contains(t, sender.sent[0].Body, "61 minute(s)")
}
