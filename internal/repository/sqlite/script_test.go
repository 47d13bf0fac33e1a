package sqlite

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/lunahub/scripthub/internal/apperror"
	"github.com/lunahub/scripthub/internal/model"
	"github.com/lunahub/scripthub/internal/repository"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func createTestUser(t *testing.T, db *DB, robloxID int64, username string) *model.User {
	t.Helper()
	user := &model.User{RobloxUserID: robloxID, Username: username}
	if err := db.Upsert(context.Background(), user); err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

func createTestScript(t *testing.T, db *DB, uploader *model.User, title string) *model.Script {
	t.Helper()
	script := &model.Script{
		Title:        title,
		Code:         "print('hello from " + title + "')",
		UploaderID:   uploader.ID,
		UploaderName: uploader.Username,
		GameName:     "Jailbreak",
	}
	if err := db.Create(context.Background(), script); err != nil {
		t.Fatalf("failed to create test script: %v", err)
	}
	return script
}

// backdate rewrites a script's creation time, for tests that need scripts
// outside the trending window or with a known list order.
func backdate(t *testing.T, db *DB, id string, createdAt time.Time) {
	t.Helper()
	if _, err := db.conn.Exec(
		`UPDATE scripts SET created_at = ? WHERE id = ?`, createdAt, id); err != nil {
		t.Fatalf("failed to backdate script: %v", err)
	}
}

func TestCreate(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, 1234, "builderman")

	script := &model.Script{
		Title:        "ESP overlay",
		Code:         "local players = game:GetService('Players')",
		UploaderID:   user.ID,
		UploaderName: user.Username,
		GameName:     "Phantom Forces",
	}
	if err := db.Create(context.Background(), script); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if script.ID == "" {
		t.Error("Create() did not set script.ID")
	}
	if script.Status != model.StatusActive {
		t.Errorf("Status = %q, want %q", script.Status, model.StatusActive)
	}
	if script.CreatedAt.IsZero() || script.UpdatedAt.IsZero() {
		t.Error("Create() did not set timestamps")
	}

	// Fresh scripts start with zeroed counters and no likers.
	got, err := db.GetByID(context.Background(), script.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Views != 0 || got.Likes != 0 {
		t.Errorf("counters = (views=%d, likes=%d), want zeros", got.Views, got.Likes)
	}
	if len(got.LikedBy) != 0 {
		t.Errorf("LikedBy = %v, want empty", got.LikedBy)
	}
}

func TestGetByID_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetByID(context.Background(), "missing")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetByID() error = %v, want ErrNotFound", err)
	}
}

func TestViewAndGet_IncrementsExactlyOnce(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, 1234, "builderman")
	script := createTestScript(t, db, user, "fly script")

	got, err := db.ViewAndGet(context.Background(), script.ID)
	if err != nil {
		t.Fatalf("ViewAndGet() error = %v", err)
	}
	if got.Views != 1 {
		t.Errorf("Views after first fetch = %d, want 1", got.Views)
	}

	got, err = db.ViewAndGet(context.Background(), script.ID)
	if err != nil {
		t.Fatalf("ViewAndGet() error = %v", err)
	}
	if got.Views != 2 {
		t.Errorf("Views after second fetch = %d, want 2", got.Views)
	}

	// A plain read never bumps the counter.
	got, err = db.GetByID(context.Background(), script.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Views != 2 {
		t.Errorf("Views after plain read = %d, want 2", got.Views)
	}
}

func TestViewAndGet_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.ViewAndGet(context.Background(), "missing")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("ViewAndGet() error = %v, want ErrNotFound", err)
	}
}

func TestList_PaginationAndOrder(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, 1234, "builderman")

	now := time.Now()
	for i := 0; i < 25; i++ {
		s := createTestScript(t, db, user, fmt.Sprintf("script %02d", i))
		backdate(t, db, s.ID, now.Add(time.Duration(i)*time.Second))
	}

	page1, err := db.List(context.Background(), repository.ListOptions{Limit: 20, Offset: 0})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(page1) != 20 {
		t.Fatalf("page 1 len = %d, want 20", len(page1))
	}
	// Newest first.
	if page1[0].Title != "script 24" {
		t.Errorf("first item = %q, want %q", page1[0].Title, "script 24")
	}

	page2, err := db.List(context.Background(), repository.ListOptions{Limit: 20, Offset: 20})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(page2) != 5 {
		t.Errorf("page 2 len = %d, want 5", len(page2))
	}

	total, err := db.CountActive(context.Background())
	if err != nil {
		t.Fatalf("CountActive() error = %v", err)
	}
	if total != 25 {
		t.Errorf("CountActive() = %d, want 25", total)
	}
}

func TestUpdate(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, 1234, "builderman")
	script := createTestScript(t, db, user, "old title")

	script.Title = "new title"
	script.Description = "now with a description"
	script.GameName = "Arsenal"
	if err := db.Update(context.Background(), script); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, err := db.GetByID(context.Background(), script.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Title != "new title" || got.GameName != "Arsenal" {
		t.Errorf("got (%q, %q), want updated fields", got.Title, got.GameName)
	}
}

func TestUpdate_NotFound(t *testing.T) {
	db := newTestDB(t)

	err := db.Update(context.Background(), &model.Script{ID: "missing", Title: "x"})
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Update() error = %v, want ErrNotFound", err)
	}
}

func TestRemove_HidesFromAllReads(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, 1234, "builderman")
	script := createTestScript(t, db, user, "soon gone")

	if err := db.Remove(context.Background(), script.ID); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	if _, err := db.GetByID(context.Background(), script.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetByID() after remove error = %v, want ErrNotFound", err)
	}
	if _, err := db.ViewAndGet(context.Background(), script.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("ViewAndGet() after remove error = %v, want ErrNotFound", err)
	}

	scripts, err := db.List(context.Background(), repository.ListOptions{Limit: 20})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(scripts) != 0 {
		t.Errorf("List() after remove = %d items, want 0", len(scripts))
	}

	total, err := db.CountActive(context.Background())
	if err != nil {
		t.Fatalf("CountActive() error = %v", err)
	}
	if total != 0 {
		t.Errorf("CountActive() after remove = %d, want 0", total)
	}

	// Removal is one-directional; a second remove reports not found.
	if err := db.Remove(context.Background(), script.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("second Remove() error = %v, want ErrNotFound", err)
	}
}

func TestAddLike(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, 1234, "builderman")
	script := createTestScript(t, db, user, "popular script")

	got, err := db.AddLike(context.Background(), script.ID, 777)
	if err != nil {
		t.Fatalf("AddLike() error = %v", err)
	}
	if got.Likes != 1 {
		t.Errorf("Likes = %d, want 1", got.Likes)
	}
	if len(got.LikedBy) != 1 || got.LikedBy[0] != 777 {
		t.Errorf("LikedBy = %v, want [777]", got.LikedBy)
	}
}

func TestAddLike_DistinctUsersAccumulate(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, 1234, "builderman")
	script := createTestScript(t, db, user, "popular script")

	const n = 5
	var got *model.Script
	var err error
	for i := int64(1); i <= n; i++ {
		got, err = db.AddLike(context.Background(), script.ID, 1000+i)
		if err != nil {
			t.Fatalf("AddLike(user %d) error = %v", 1000+i, err)
		}
	}

	if got.Likes != n {
		t.Errorf("Likes = %d, want %d", got.Likes, n)
	}
	if len(got.LikedBy) != n {
		t.Errorf("len(LikedBy) = %d, want %d", len(got.LikedBy), n)
	}
}

func TestAddLike_Duplicate(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, 1234, "builderman")
	script := createTestScript(t, db, user, "popular script")

	if _, err := db.AddLike(context.Background(), script.ID, 777); err != nil {
		t.Fatalf("first AddLike() error = %v", err)
	}

	_, err := db.AddLike(context.Background(), script.ID, 777)
	if !errors.Is(err, apperror.ErrAlreadyLiked) {
		t.Fatalf("second AddLike() error = %v, want ErrAlreadyLiked", err)
	}

	// The failed duplicate must not have changed the counter.
	got, err := db.GetByID(context.Background(), script.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Likes != 1 || len(got.LikedBy) != 1 {
		t.Errorf("after duplicate: likes=%d likedBy=%v, want 1/[777]", got.Likes, got.LikedBy)
	}
}

func TestAddLike_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.AddLike(context.Background(), "missing", 777)
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("AddLike() error = %v, want ErrNotFound", err)
	}
}

func TestAddLike_RemovedScript(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, 1234, "builderman")
	script := createTestScript(t, db, user, "soon gone")

	if err := db.Remove(context.Background(), script.ID); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	_, err := db.AddLike(context.Background(), script.ID, 777)
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("AddLike() on removed script error = %v, want ErrNotFound", err)
	}
}

func TestSearch(t *testing.T) {
	db := newTestDB(t)
	alice := createTestUser(t, db, 1, "alice")
	bob := createTestUser(t, db, 2, "bob")

	s1 := createTestScript(t, db, alice, "lua aimbot")
	s2 := &model.Script{
		Title:        "speed hack",
		Code:         "humanoid.WalkSpeed = 100",
		UploaderID:   bob.ID,
		UploaderName: bob.Username,
		GameName:     "Lua Obby",
	}
	if err := db.Create(context.Background(), s2); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	// Matches nothing for "lua".
	s3 := &model.Script{
		Title:        "teleporter",
		Code:         "part.CFrame = CFrame.new(0, 50, 0)",
		UploaderID:   bob.ID,
		UploaderName: bob.Username,
		GameName:     "Brookhaven",
	}
	if err := db.Create(context.Background(), s3); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	scripts, total, err := db.Search(context.Background(), "lua", repository.ListOptions{Limit: 20})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if total != 2 {
		t.Errorf("total = %d, want 2", total)
	}
	ids := map[string]bool{}
	for _, s := range scripts {
		ids[s.ID] = true
	}
	if !ids[s1.ID] || !ids[s2.ID] || ids[s3.ID] {
		t.Errorf("Search() returned %v, want exactly {%s, %s}", ids, s1.ID, s2.ID)
	}
}

func TestSearch_ExcludesRemoved(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, 1234, "builderman")
	script := createTestScript(t, db, user, "lua aimbot")

	if err := db.Remove(context.Background(), script.ID); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	scripts, total, err := db.Search(context.Background(), "lua", repository.ListOptions{Limit: 20})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if total != 0 || len(scripts) != 0 {
		t.Errorf("Search() after remove = (%d items, total %d), want none", len(scripts), total)
	}
}

func TestSearch_QuotesHostileInput(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, 1234, "builderman")
	createTestScript(t, db, user, "lua aimbot")

	// FTS5 operator characters in user input must not produce a query error.
	for _, q := range []string{`lua OR "`, `NEAR(`, `col:value`, `*`, `-lua`} {
		if _, _, err := db.Search(context.Background(), q, repository.ListOptions{Limit: 20}); err != nil {
			t.Errorf("Search(%q) error = %v, want nil", q, err)
		}
	}
}

func TestSearch_SeesEditedFields(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, 1234, "builderman")
	script := createTestScript(t, db, user, "boring name")

	script.Title = "zombie spawner"
	if err := db.Update(context.Background(), script); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	_, total, err := db.Search(context.Background(), "zombie", repository.ListOptions{Limit: 20})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if total != 1 {
		t.Errorf("total = %d, want 1 (index should follow edits)", total)
	}

	_, total, err = db.Search(context.Background(), "boring", repository.ListOptions{Limit: 20})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if total != 0 {
		t.Errorf("total = %d, want 0 (old title should be gone from the index)", total)
	}
}

func TestTrending(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, 1234, "builderman")

	fresh := createTestScript(t, db, user, "fresh and hot")
	stale := createTestScript(t, db, user, "old news")
	backdate(t, db, stale.ID, time.Now().Add(-48*time.Hour))

	// Give the fresh script some views.
	for n := 0; n < 3; n++ {
		if _, err := db.ViewAndGet(context.Background(), fresh.ID); err != nil {
			t.Fatalf("ViewAndGet() error = %v", err)
		}
	}

	scripts, err := db.Trending(context.Background(), time.Now().Add(-24*time.Hour), 10)
	if err != nil {
		t.Fatalf("Trending() error = %v", err)
	}
	if len(scripts) != 1 {
		t.Fatalf("Trending() len = %d, want 1 (stale script excluded)", len(scripts))
	}
	if scripts[0].ID != fresh.ID {
		t.Errorf("Trending()[0] = %s, want %s", scripts[0].ID, fresh.ID)
	}
}

func TestTrending_OrderAndCap(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, 1234, "builderman")

	// 12 scripts; script i gets i views. Two extra likes on script 5 break
	// the tie against nobody (all view counts distinct), but verify the
	// secondary sort key is carried.
	for i := 0; i < 12; i++ {
		s := createTestScript(t, db, user, fmt.Sprintf("script %d", i))
		for j := 0; j < i; j++ {
			if _, err := db.ViewAndGet(context.Background(), s.ID); err != nil {
				t.Fatalf("ViewAndGet() error = %v", err)
			}
		}
	}

	scripts, err := db.Trending(context.Background(), time.Now().Add(-24*time.Hour), 10)
	if err != nil {
		t.Fatalf("Trending() error = %v", err)
	}
	if len(scripts) != 10 {
		t.Fatalf("Trending() len = %d, want 10 (capped)", len(scripts))
	}
	for i := 1; i < len(scripts); i++ {
		prev, cur := scripts[i-1], scripts[i]
		if prev.Views < cur.Views {
			t.Errorf("views not descending at %d: %d < %d", i, prev.Views, cur.Views)
		}
		if prev.Views == cur.Views && prev.Likes < cur.Likes {
			t.Errorf("likes tie-break violated at %d", i)
		}
	}
}

func TestHasRecentDuplicate(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, 1234, "builderman")
	other := createTestUser(t, db, 5678, "shedletsky")

	script := &model.Script{
		Title:        "wall hack",
		Code:         "workspace.Walls:Destroy()",
		UploaderID:   user.ID,
		UploaderName: user.Username,
		GameName:     "Jailbreak",
	}
	if err := db.Create(context.Background(), script); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	since := time.Now().Add(-time.Hour)

	dup, err := db.HasRecentDuplicate(context.Background(), user.ID, script.Code, since)
	if err != nil {
		t.Fatalf("HasRecentDuplicate() error = %v", err)
	}
	if !dup {
		t.Error("same uploader, same code: want duplicate")
	}

	dup, err = db.HasRecentDuplicate(context.Background(), other.ID, script.Code, since)
	if err != nil {
		t.Fatalf("HasRecentDuplicate() error = %v", err)
	}
	if dup {
		t.Error("different uploader: want no duplicate")
	}

	dup, err = db.HasRecentDuplicate(context.Background(), user.ID, "different code entirely", since)
	if err != nil {
		t.Fatalf("HasRecentDuplicate() error = %v", err)
	}
	if dup {
		t.Error("different code: want no duplicate")
	}

	// Outside the window.
	backdate(t, db, script.ID, time.Now().Add(-2*time.Hour))
	dup, err = db.HasRecentDuplicate(context.Background(), user.ID, script.Code, since)
	if err != nil {
		t.Fatalf("HasRecentDuplicate() error = %v", err)
	}
	if dup {
		t.Error("upload older than window: want no duplicate")
	}
}
