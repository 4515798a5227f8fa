package directory

import (
	"testing"

	"clearcall/internal/models"
)

func seeded() *Directory {
	d := New()
	d.Put(models.User{ID: "u1", Name: "Ram", Username: "ram", Password: "ram123", Status: models.StatusOnline})
	d.Put(models.User{ID: "u2", Name: "Jitendra", Username: "jitendra", Password: "jit123", Status: models.StatusOffline})
	d.Put(models.User{ID: "u3", Name: "Harsh", Username: "harsh", Password: "harsh123", Status: models.StatusOnline})
	return d
}

func TestLookups(t *testing.T) {
	d := seeded()

	u, ok := d.ByID("u2")
	if !ok || u.Username != "jitendra" {
		t.Fatalf("ByID(u2) = %+v, %v", u, ok)
	}
	u, ok = d.ByIdentity("ram")
	if !ok || u.ID != "u1" {
		t.Fatalf("ByIdentity(ram) = %+v, %v", u, ok)
	}
	if _, ok := d.ByID("nope"); ok {
		t.Fatal("ByID found a user that was never put")
	}
	if _, ok := d.ByIdentity("nope"); ok {
		t.Fatal("ByIdentity found a user that was never put")
	}
}

func TestSetStatusVisibleInBothIndexes(t *testing.T) {
	d := seeded()
	d.SetStatus("u2", models.StatusOnline)

	u, _ := d.ByID("u2")
	if u.Status != models.StatusOnline {
		t.Fatalf("ByID status %s", u.Status)
	}
	u, _ = d.ByIdentity("jitendra")
	if u.Status != models.StatusOnline {
		t.Fatalf("ByIdentity status %s", u.Status)
	}

	// Unknown ids are ignored.
	d.SetStatus("nope", models.StatusBusy)
}

func TestSnapshotExcludesSelfAndSorts(t *testing.T) {
	d := seeded()
	users := d.Snapshot("u1")
	if len(users) != 2 {
		t.Fatalf("snapshot len %d, want 2", len(users))
	}
	if users[0].Name != "Harsh" || users[1].Name != "Jitendra" {
		t.Fatalf("snapshot not sorted by name: %+v", users)
	}
	for _, u := range users {
		if u.ID == "u1" {
			t.Fatal("snapshot contains the excluded user")
		}
	}
}

func TestAuthenticate(t *testing.T) {
	d := seeded()

	u, ok := d.Authenticate("ram", "ram123")
	if !ok || u.ID != "u1" {
		t.Fatalf("Authenticate(ram) = %+v, %v", u, ok)
	}
	if _, ok := d.Authenticate("ram", "wrong"); ok {
		t.Fatal("wrong password accepted")
	}
	if _, ok := d.Authenticate("nobody", "x"); ok {
		t.Fatal("unknown user accepted")
	}
}

func TestPutOverwrites(t *testing.T) {
	d := seeded()
	d.Put(models.User{ID: "u1", Name: "Ram Kumar", Username: "ram", Password: "new", Status: models.StatusAway})

	u, _ := d.ByID("u1")
	if u.Name != "Ram Kumar" || u.Status != models.StatusAway {
		t.Fatalf("overwrite lost: %+v", u)
	}
	if _, ok := d.Authenticate("ram", "new"); !ok {
		t.Fatal("new credential rejected")
	}
}
