package chat_test

import (
	"testing"

	chat "github.com/zhouzirui/z-chat/internal/model/chat"
)

func newConv(id, title string) chat.Conversation {
	return chat.Conversation{ID: id, Title: title}
}

func TestStoreInsertNewestFirst(t *testing.T) {
	store := chat.NewStore()
	store.Insert(newConv("c_one", "first"))
	store.Insert(newConv("c_two", "second"))

	list := store.List()
	if len(list) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(list))
	}
	if list[0].ID != "c_two" || list[1].ID != "c_one" {
		t.Fatalf("unexpected order: %s, %s", list[0].ID, list[1].ID)
	}
}

func TestStoreRename(t *testing.T) {
	store := chat.NewStore()
	store.Insert(newConv("c_one", "before"))

	if err := store.Rename("c_one", "after"); err != nil {
		t.Fatalf("Rename err: %v", err)
	}
	conv, ok := store.Get("c_one")
	if !ok {
		t.Fatal("conversation missing after rename")
	}
	if conv.Title != "after" {
		t.Fatalf("unexpected title: %s", conv.Title)
	}

	if err := store.Rename("missing", "x"); err != chat.ErrConversationNotFound {
		t.Fatalf("expected ErrConversationNotFound, got %v", err)
	}
}

func TestStoreDeleteActiveSelectsNext(t *testing.T) {
	store := chat.NewStore()
	store.Insert(newConv("c_old", "old"))
	store.Insert(newConv("c_new", "new"))
	if err := store.SetActive("c_new"); err != nil {
		t.Fatalf("SetActive err: %v", err)
	}

	next, err := store.Delete("c_new")
	if err != nil {
		t.Fatalf("Delete err: %v", err)
	}
	if next != "c_old" {
		t.Fatalf("expected c_old to become active, got %q", next)
	}
	if store.ActiveID() != "c_old" {
		t.Fatalf("active id not updated: %s", store.ActiveID())
	}
}

func TestStoreDeleteLastLeavesEmptyActive(t *testing.T) {
	store := chat.NewStore()
	store.Insert(newConv("c_only", "only"))
	if err := store.SetActive("c_only"); err != nil {
		t.Fatalf("SetActive err: %v", err)
	}

	next, err := store.Delete("c_only")
	if err != nil {
		t.Fatalf("Delete err: %v", err)
	}
	if next != "" {
		t.Fatalf("expected empty next id, got %q", next)
	}
	if store.Len() != 0 {
		t.Fatalf("expected empty store, got %d", store.Len())
	}
}

func TestStoreDeleteInactiveKeepsActive(t *testing.T) {
	store := chat.NewStore()
	store.Insert(newConv("c_a", "a"))
	store.Insert(newConv("c_b", "b"))
	if err := store.SetActive("c_b"); err != nil {
		t.Fatalf("SetActive err: %v", err)
	}

	if _, err := store.Delete("c_a"); err != nil {
		t.Fatalf("Delete err: %v", err)
	}
	if store.ActiveID() != "c_b" {
		t.Fatalf("active id changed unexpectedly: %s", store.ActiveID())
	}
}

func TestStoreAppendContentOrdering(t *testing.T) {
	store := chat.NewStore()
	store.Insert(newConv("c_one", "chat"))
	msg := chat.Message{ID: "a_1", Role: chat.RoleAssistant, Type: chat.TypeThinking}
	if err := store.AppendMessage("c_one", msg); err != nil {
		t.Fatalf("AppendMessage err: %v", err)
	}

	for _, chunk := range []string{"Hi", " ", "there"} {
		if err := store.AppendContent("c_one", "a_1", chunk); err != nil {
			t.Fatalf("AppendContent err: %v", err)
		}
	}

	conv, _ := store.Get("c_one")
	if got := conv.Messages[0].Content; got != "Hi there" {
		t.Fatalf("unexpected content: %q", got)
	}
}

func TestStoreAppendRefreshesUpdatedAt(t *testing.T) {
	store := chat.NewStore()
	store.Insert(newConv("c_one", "chat"))
	before, _ := store.Get("c_one")

	if err := store.AppendMessage("c_one", chat.Message{ID: "u_1", Role: chat.RoleUser, Type: chat.TypeFinal}); err != nil {
		t.Fatalf("AppendMessage err: %v", err)
	}

	after, _ := store.Get("c_one")
	if after.UpdatedAt.Before(before.UpdatedAt) {
		t.Fatal("UpdatedAt went backwards")
	}
}

func TestStoreReplaceID(t *testing.T) {
	store := chat.NewStore()
	store.Insert(newConv("c_temp", "chat"))
	if err := store.SetActive("c_temp"); err != nil {
		t.Fatalf("SetActive err: %v", err)
	}

	if !store.ReplaceID("c_temp", "abc-123") {
		t.Fatal("ReplaceID reported no-op for a real swap")
	}
	if _, ok := store.Get("c_temp"); ok {
		t.Fatal("old id still resolvable after swap")
	}
	conv, ok := store.Get("abc-123")
	if !ok {
		t.Fatal("new id not resolvable after swap")
	}
	if conv.ID != "abc-123" {
		t.Fatalf("conversation carries stale id %s", conv.ID)
	}
	if store.ActiveID() != "abc-123" {
		t.Fatalf("active id not rewritten: %s", store.ActiveID())
	}
	if store.List()[0].ID != "abc-123" {
		t.Fatal("order list not rewritten")
	}
}

func TestStoreReplaceIDIdempotent(t *testing.T) {
	store := chat.NewStore()
	store.Insert(newConv("c_temp", "chat"))

	if store.ReplaceID("c_temp", "c_temp") {
		t.Fatal("same-id replace should be a no-op")
	}

	store.ReplaceID("c_temp", "abc-123")
	if store.ReplaceID("c_temp", "abc-123") {
		t.Fatal("second replace with same arguments should be a no-op")
	}
	if store.Len() != 1 {
		t.Fatalf("store corrupted by repeated replace: %d entries", store.Len())
	}
}

func TestIsProvisional(t *testing.T) {
	if !chat.IsProvisional(chat.NewProvisionalID()) {
		t.Fatal("minted id not recognized as provisional")
	}
	if chat.IsProvisional("abc-123") {
		t.Fatal("canonical id misclassified as provisional")
	}
}
