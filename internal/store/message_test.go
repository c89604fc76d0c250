package store

import (
	"testing"
	"time"

	"github.com/ecopower/ecopower/internal/database"
	"github.com/ecopower/ecopower/internal/model"
)

type messageFixture struct {
	messages *MessageStore
	ownerID  int64
	resID    int64
	houseID  int64
}

func setupMessageTestDB(t *testing.T) *messageFixture {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	us := NewUserStore(db)
	hs := NewHouseStore(db)
	owner, err := us.CreateOwner("Ama", "Kodjo", "ama@example.com", "", "hash")
	if err != nil {
		t.Fatalf("create owner: %v", err)
	}
	resident, err := us.CreateResident(owner.ID, "Kossi", "Mensah", "kossi@example.com", "", "hash")
	if err != nil {
		t.Fatalf("create resident: %v", err)
	}
	house, err := hs.Create(owner.ID, "Villa Rose", "12 Rue des Palmiers", "Lome", "01BP45", "Togo", "", 0.15)
	if err != nil {
		t.Fatalf("create house: %v", err)
	}
	return &messageFixture{
		messages: NewMessageStore(db),
		ownerID:  owner.ID,
		resID:    resident.ID,
		houseID:  house.ID,
	}
}

func TestMessageDirectConversation(t *testing.T) {
	f := setupMessageTestDB(t)

	m1, err := f.messages.Create(&model.Message{
		SenderID:   f.ownerID,
		ReceiverID: &f.resID,
		HouseID:    f.houseID,
		Body:       "Reading scheduled tomorrow",
		Kind:       model.MessageText,
	})
	if err != nil {
		t.Fatalf("create message: %v", err)
	}
	if !m1.Direct() {
		t.Error("expected direct message")
	}

	if _, err := f.messages.Create(&model.Message{
		SenderID:   f.resID,
		ReceiverID: &f.ownerID,
		HouseID:    f.houseID,
		Body:       "Understood",
		Kind:       model.MessageText,
	}); err != nil {
		t.Fatalf("create reply: %v", err)
	}

	conv, err := f.messages.ListConversation(f.ownerID, f.resID, 50)
	if err != nil {
		t.Fatalf("list conversation: %v", err)
	}
	if len(conv) != 2 {
		t.Fatalf("conversation = %d messages, want 2", len(conv))
	}
	if conv[0].Body != "Reading scheduled tomorrow" {
		t.Errorf("first message = %q", conv[0].Body)
	}
}

func TestMessageHouseBroadcast(t *testing.T) {
	f := setupMessageTestDB(t)

	if _, err := f.messages.Create(&model.Message{
		SenderID: f.ownerID,
		HouseID:  f.houseID,
		Body:     "Water cut on Saturday",
		Kind:     model.MessageSystem,
	}); err != nil {
		t.Fatalf("create broadcast: %v", err)
	}
	if _, err := f.messages.Create(&model.Message{
		SenderID:   f.ownerID,
		ReceiverID: &f.resID,
		HouseID:    f.houseID,
		Body:       "Private note",
		Kind:       model.MessageText,
	}); err != nil {
		t.Fatalf("create direct: %v", err)
	}

	broadcast, err := f.messages.ListHouse(f.houseID, 50)
	if err != nil {
		t.Fatalf("list house: %v", err)
	}
	if len(broadcast) != 1 {
		t.Fatalf("house messages = %d, want 1", len(broadcast))
	}
	if broadcast[0].Body != "Water cut on Saturday" {
		t.Errorf("body = %q", broadcast[0].Body)
	}
}

func TestMessageMarkReadAndUnreadCount(t *testing.T) {
	f := setupMessageTestDB(t)

	for _, body := range []string{"one", "two"} {
		if _, err := f.messages.Create(&model.Message{
			SenderID:   f.ownerID,
			ReceiverID: &f.resID,
			HouseID:    f.houseID,
			Body:       body,
			Kind:       model.MessageText,
		}); err != nil {
			t.Fatalf("create message: %v", err)
		}
	}

	unread, err := f.messages.CountUnread(f.resID)
	if err != nil {
		t.Fatalf("count unread: %v", err)
	}
	if unread != 2 {
		t.Errorf("unread = %d, want 2", unread)
	}

	n, err := f.messages.MarkRead(f.resID, f.ownerID, time.Now())
	if err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if n != 2 {
		t.Errorf("marked = %d, want 2", n)
	}

	unread, err = f.messages.CountUnread(f.resID)
	if err != nil {
		t.Fatalf("count unread: %v", err)
	}
	if unread != 0 {
		t.Errorf("unread = %d, want 0", unread)
	}
}

func TestMessageCleanupKeepsInvoiceNotices(t *testing.T) {
	f := setupMessageTestDB(t)

	old, err := f.messages.Create(&model.Message{
		SenderID:   f.ownerID,
		ReceiverID: &f.resID,
		HouseID:    f.houseID,
		Body:       "old chat",
		Kind:       model.MessageText,
	})
	if err != nil {
		t.Fatalf("create old message: %v", err)
	}
	notice, err := f.messages.Create(&model.Message{
		SenderID:   f.ownerID,
		ReceiverID: &f.resID,
		HouseID:    f.houseID,
		Body:       "Your invoice FACT-202603-0001 is ready",
		Kind:       model.MessageInvoice,
	})
	if err != nil {
		t.Fatalf("create invoice notice: %v", err)
	}

	// age both messages past the cutoff
	past := time.Now().AddDate(0, -7, 0)
	if _, err := f.messages.db.Exec(`UPDATE messages SET sent_at = ?`, past); err != nil {
		t.Fatalf("age messages: %v", err)
	}

	cutoff := time.Now().AddDate(0, -6, 0)
	n, err := f.messages.DeleteOlderThan(cutoff)
	if err != nil {
		t.Fatalf("delete older than: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted = %d, want 1", n)
	}

	gone, err := f.messages.GetByID(old.ID)
	if err != nil {
		t.Fatalf("get old message: %v", err)
	}
	if gone != nil {
		t.Error("old chat message should be deleted")
	}
	kept, err := f.messages.GetByID(notice.ID)
	if err != nil {
		t.Fatalf("get notice: %v", err)
	}
	if kept == nil {
		t.Error("invoice notice should survive cleanup")
	}
}
