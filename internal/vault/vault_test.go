package vault

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/tonkeeper/tonkeeper-core/internal/storage"
	"github.com/tonkeeper/tonkeeper-core/internal/wallet"
	"github.com/tonkeeper/tonkeeper-core/pkg/crypto"
)

var errWriteFailed = errors.New("disk full")

// failingDB hides the atomic batch of the wrapped DB and fails the n-th put
// whose key starts with prefix.
type failingDB struct {
	storage.DB
	prefix []byte
	failAt int
	puts   int
}

func (f *failingDB) Put(key, value []byte) error {
	if bytes.HasPrefix(key, f.prefix) {
		f.puts++
		if f.puts == f.failAt {
			return errWriteFailed
		}
	}
	return f.DB.Put(key, value)
}

func testMnemonic(t *testing.T) wallet.Mnemonic {
	t.Helper()
	m, err := wallet.NewMnemonic(testWords)
	if err != nil {
		t.Fatalf("NewMnemonic() error: %v", err)
	}
	return m
}

func fakeKey(i byte) wallet.WalletKey {
	return wallet.WalletKey{PublicKey: bytes.Repeat([]byte{i}, 32), Name: "key"}
}

func testVault(t *testing.T, db storage.DB, opts ...Option) *Vault {
	t.Helper()
	return New(db, append([]Option{WithParams(fastParams())}, opts...)...)
}

// legacyVault fills version ver of db with n keys under password.
func legacyVault(t *testing.T, db storage.DB, ver Version, n int, password string) []string {
	t.Helper()
	v := testVault(t, db, WithCurrentVersion(ver))
	var ids []string
	for i := 0; i < n; i++ {
		k := fakeKey(byte(i + 1))
		if err := v.Add(context.Background(), k, testMnemonic(t), []byte(password)); err != nil {
			t.Fatalf("Add() error: %v", err)
		}
		ids = append(ids, k.ID())
	}
	sort.Strings(ids)
	return ids
}

func mustIDs(t *testing.T, v *Vault, ver Version) []string {
	t.Helper()
	ids, err := v.KeyIDs(ver)
	if err != nil {
		t.Fatalf("KeyIDs(%s) error: %v", ver, err)
	}
	sort.Strings(ids)
	return ids
}

func TestVault_AddAndMnemonic(t *testing.T) {
	v := testVault(t, storage.NewMemory())
	key := fakeKey(1)

	if err := v.Add(context.Background(), key, testMnemonic(t), []byte("correct")); err != nil {
		t.Fatalf("Add() error: %v", err)
	}

	m, err := v.Mnemonic(key.ID(), []byte("correct"))
	if err != nil {
		t.Fatalf("Mnemonic() error: %v", err)
	}
	if !m.Equal(testMnemonic(t)) {
		t.Error("decrypted mnemonic does not match")
	}

	if _, err := v.Mnemonic(key.ID(), []byte("wrong")); !errors.Is(err, ErrAuthenticationFailed) {
		t.Errorf("Mnemonic() with wrong password error = %v, want ErrAuthenticationFailed", err)
	}
}

func TestVault_Scenario24Words(t *testing.T) {
	words := strings.Fields("abandon ability able about above absent absorb abstract absurd abuse access accident account accuse achieve acid acoustic acquire across act action actor actress actual")
	m, err := wallet.NewMnemonic(words)
	if err != nil {
		t.Fatalf("NewMnemonic() error: %v", err)
	}
	v := testVault(t, storage.NewMemory())
	key := fakeKey(7)
	if err := v.Add(context.Background(), key, m, []byte("correct")); err != nil {
		t.Fatalf("Add() error: %v", err)
	}

	got, err := v.Mnemonic(key.ID(), []byte("correct"))
	if err != nil {
		t.Fatalf("Mnemonic(correct) error: %v", err)
	}
	if strings.Join(got.Words(), " ") != strings.Join(words, " ") {
		t.Error("decrypted words differ from the original 24 words")
	}
	if _, err := v.Mnemonic(key.ID(), []byte("wrong")); !errors.Is(err, ErrAuthenticationFailed) {
		t.Errorf("Mnemonic(wrong) error = %v, want ErrAuthenticationFailed", err)
	}
}

func TestVault_AddValidation(t *testing.T) {
	v := testVault(t, storage.NewMemory())

	if err := v.Add(context.Background(), fakeKey(1), testMnemonic(t), []byte("123")); !errors.Is(err, ErrPasswordTooShort) {
		t.Errorf("Add() short password error = %v, want ErrPasswordTooShort", err)
	}
	if err := v.Add(context.Background(), fakeKey(1), wallet.Mnemonic{}, []byte("1234")); !errors.Is(err, wallet.ErrInvalidMnemonic) {
		t.Errorf("Add() empty mnemonic error = %v, want ErrInvalidMnemonic", err)
	}
	if empty, _ := v.IsEmpty(CurrentVersion); !empty {
		t.Error("rejected Add() must not write")
	}
}

func TestVault_AddReplacesOlderVersions(t *testing.T) {
	db := storage.NewMemory()
	ids := legacyVault(t, db, V2, 1, "pass")

	v := testVault(t, db)
	if err := v.Add(context.Background(), fakeKey(1), testMnemonic(t), []byte("pass")); err != nil {
		t.Fatalf("Add() error: %v", err)
	}
	if has, _ := v.Has(V2, ids[0]); has {
		t.Error("older entry of the same key should be removed")
	}
	if has, _ := v.Has(V4, ids[0]); !has {
		t.Error("entry should be stored in the current version")
	}
}

func TestVault_MnemonicNotFound(t *testing.T) {
	v := testVault(t, storage.NewMemory())
	if _, err := v.Mnemonic("missing", []byte("pass")); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Mnemonic() error = %v, want ErrKeyNotFound", err)
	}
}

func TestVault_Delete(t *testing.T) {
	v := testVault(t, storage.NewMemory())
	key := fakeKey(1)
	v.Add(context.Background(), key, testMnemonic(t), []byte("pass"))

	if err := v.Delete(context.Background(), key.ID()); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if has, _ := v.Has(CurrentVersion, key.ID()); has {
		t.Error("key should be gone after Delete()")
	}
}

func TestVault_Verify(t *testing.T) {
	v := testVault(t, storage.NewMemory())
	if err := v.Verify([]byte("pass")); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Verify() on empty vault error = %v, want ErrKeyNotFound", err)
	}
	v.Add(context.Background(), fakeKey(1), testMnemonic(t), []byte("pass"))
	if err := v.Verify([]byte("pass")); err != nil {
		t.Errorf("Verify() error: %v", err)
	}
	if err := v.Verify([]byte("nope")); !errors.Is(err, ErrAuthenticationFailed) {
		t.Errorf("Verify() wrong password error = %v, want ErrAuthenticationFailed", err)
	}
}

func TestVault_Sign(t *testing.T) {
	v := testVault(t, storage.NewMemory())
	m := testMnemonic(t)
	pub, err := m.PublicKey()
	if err != nil {
		t.Fatalf("PublicKey() error: %v", err)
	}
	key := wallet.WalletKey{PublicKey: pub}
	v.Add(context.Background(), key, m, []byte("pass"))

	msg := []byte("transfer")
	sig, err := v.Sign(key.ID(), []byte("pass"), msg)
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	if !crypto.VerifySignature(msg, sig, pub) {
		t.Error("vault signature does not verify against the wallet key")
	}
}

func TestVault_Persistence(t *testing.T) {
	dir := t.TempDir()
	db, err := storage.NewBadger(dir)
	if err != nil {
		t.Fatalf("NewBadger() error: %v", err)
	}
	key := fakeKey(3)
	if err := testVault(t, db).Add(context.Background(), key, testMnemonic(t), []byte("pass")); err != nil {
		t.Fatalf("Add() error: %v", err)
	}
	db.Close()

	db, err = storage.NewBadger(dir)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	defer db.Close()
	m, err := testVault(t, db).Mnemonic(key.ID(), []byte("pass"))
	if err != nil {
		t.Fatalf("Mnemonic() after reopen error: %v", err)
	}
	if !m.Equal(testMnemonic(t)) {
		t.Error("mnemonic changed across reopen")
	}
}

func TestMigrate_V2ToV3(t *testing.T) {
	db := storage.NewMemory()
	ids := legacyVault(t, db, V2, 3, "pass")
	v := testVault(t, db)

	if err := v.Migrate(context.Background(), V2, V3, []byte("pass")); err != nil {
		t.Fatalf("Migrate() error: %v", err)
	}
	if got := mustIDs(t, v, V2); len(got) != 0 {
		t.Errorf("v2 should be empty after migration, has %v", got)
	}
	got := mustIDs(t, v, V3)
	if strings.Join(got, ",") != strings.Join(ids, ",") {
		t.Errorf("v3 ids = %v, want %v", got, ids)
	}
	for _, id := range ids {
		words, err := v.decryptWords(V3, id, []byte("pass"))
		if err != nil {
			t.Fatalf("decrypt migrated %s: %v", id, err)
		}
		if !sameWords(words, testWords) {
			t.Errorf("migrated words of %s differ", id)
		}
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	db := storage.NewMemory()
	legacyVault(t, db, V2, 2, "pass")
	v := testVault(t, db)

	if err := v.Migrate(context.Background(), V2, V3, []byte("pass")); err != nil {
		t.Fatalf("first Migrate() error: %v", err)
	}
	snapshot := map[string][]byte{}
	for _, id := range mustIDs(t, v, V3) {
		e, _ := v.spaces[V3].Get([]byte(id))
		snapshot[id] = e
	}

	if err := v.Migrate(context.Background(), V2, V3, []byte("pass")); err != nil {
		t.Fatalf("second Migrate() error: %v", err)
	}
	ids := mustIDs(t, v, V3)
	if len(ids) != len(snapshot) {
		t.Fatalf("v3 has %d entries after rerun, want %d", len(ids), len(snapshot))
	}
	for _, id := range ids {
		e, _ := v.spaces[V3].Get([]byte(id))
		if !bytes.Equal(e, snapshot[id]) {
			t.Errorf("entry %s changed on rerun", id)
		}
	}
	if empty, _ := v.IsEmpty(V2); !empty {
		t.Error("v2 should stay empty")
	}
}

func TestMigrate_ResumesAfterInterruptedCleanup(t *testing.T) {
	db := storage.NewMemory()
	ids := legacyVault(t, db, V2, 2, "pass")

	// Simulate a crash after the first key was written to v3 but before v2
	// was cleaned up.
	pre, err := Encrypt(V3, ids[0], testWords, []byte("pass"), fastParams())
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}
	data, _ := marshalEntry(pre)
	v := testVault(t, db)
	v.spaces[V3].Put([]byte(ids[0]), data)

	if err := v.Migrate(context.Background(), V2, V3, []byte("pass")); err != nil {
		t.Fatalf("Migrate() error: %v", err)
	}
	got, _ := v.spaces[V3].Get([]byte(ids[0]))
	if !bytes.Equal(got, data) {
		t.Error("existing v3 entry should not be re-encrypted")
	}
	if n := len(mustIDs(t, v, V3)); n != 2 {
		t.Errorf("v3 entries = %d, want 2", n)
	}
	if empty, _ := v.IsEmpty(V2); !empty {
		t.Error("v2 should be empty")
	}
}

func TestMigrate_WriteFailureLeavesSourceIntact(t *testing.T) {
	for k := 1; k <= 3; k++ {
		mem := storage.NewMemory()
		ids := legacyVault(t, mem, V2, 3, "pass")

		fdb := &failingDB{DB: mem, prefix: []byte("v3/"), failAt: k}
		v := testVault(t, fdb)

		err := v.Migrate(context.Background(), V2, V3, []byte("pass"))
		if !errors.Is(err, ErrMigrationAborted) || !errors.Is(err, errWriteFailed) {
			t.Fatalf("k=%d: Migrate() error = %v, want ErrMigrationAborted wrapping write failure", k, err)
		}
		if got := mustIDs(t, v, V2); strings.Join(got, ",") != strings.Join(ids, ",") {
			t.Errorf("k=%d: v2 ids = %v, want untouched %v", k, got, ids)
		}
		if got := mustIDs(t, v, V3); len(got) != 0 {
			t.Errorf("k=%d: partially migrated entries left in v3: %v", k, got)
		}
	}
}

func TestMigrate_WrongPasswordAborts(t *testing.T) {
	db := storage.NewMemory()
	ids := legacyVault(t, db, V2, 2, "pass")
	v := testVault(t, db)

	err := v.Migrate(context.Background(), V2, V3, []byte("wrong"))
	if !errors.Is(err, ErrMigrationAborted) || !errors.Is(err, ErrAuthenticationFailed) {
		t.Fatalf("Migrate() error = %v, want aborted authentication failure", err)
	}
	if got := mustIDs(t, v, V2); len(got) != len(ids) {
		t.Error("v2 must be untouched")
	}
	if empty, _ := v.IsEmpty(V3); !empty {
		t.Error("v3 must stay empty")
	}
}

func TestMigrate_ReadBackMismatchRollsBack(t *testing.T) {
	db := storage.NewMemory()
	ids := legacyVault(t, db, V2, 2, "pass")
	v := testVault(t, db)

	other := append([]string(nil), testWords...)
	other[0] = "zoo"
	stale, _ := Encrypt(V3, ids[0], other, []byte("pass"), fastParams())
	data, _ := marshalEntry(stale)
	v.spaces[V3].Put([]byte(ids[0]), data)

	err := v.Migrate(context.Background(), V2, V3, []byte("pass"))
	if !errors.Is(err, ErrReadBackMismatch) {
		t.Fatalf("Migrate() error = %v, want ErrReadBackMismatch", err)
	}
	if got := mustIDs(t, v, V2); len(got) != 2 {
		t.Error("v2 must be untouched after a failed read-back")
	}
	if got := mustIDs(t, v, V3); len(got) != 1 || got[0] != ids[0] {
		t.Errorf("v3 = %v, want only the pre-existing entry", got)
	}
}

func TestMigrate_EmptySourceNoop(t *testing.T) {
	v := testVault(t, storage.NewMemory())
	if err := v.Migrate(context.Background(), V2, V3, []byte("pass")); err != nil {
		t.Errorf("Migrate() on empty source error: %v", err)
	}
	if err := v.Migrate(context.Background(), V3, V2, []byte("pass")); !errors.Is(err, ErrMigrationAborted) {
		t.Errorf("downgrade error = %v, want ErrMigrationAborted", err)
	}
}

func TestMigrateChain(t *testing.T) {
	db := storage.NewMemory()
	ids := legacyVault(t, db, V2, 2, "pass")
	v := testVault(t, db)

	need, err := v.NeedsMigration()
	if err != nil || !need {
		t.Fatalf("NeedsMigration() = %v, %v; want true", need, err)
	}
	if err := v.MigrateChain(context.Background(), []byte("pass")); err != nil {
		t.Fatalf("MigrateChain() error: %v", err)
	}
	if got := mustIDs(t, v, V4); strings.Join(got, ",") != strings.Join(ids, ",") {
		t.Errorf("v4 ids = %v, want %v", got, ids)
	}
	for _, ver := range []Version{V2, V3} {
		if empty, _ := v.IsEmpty(ver); !empty {
			t.Errorf("%s should be empty after the chain", ver)
		}
	}
	if need, _ := v.NeedsMigration(); need {
		t.Error("NeedsMigration() should be false after the chain")
	}
	if _, err := v.Mnemonic(ids[1], []byte("pass")); err != nil {
		t.Errorf("Mnemonic() after chain error: %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	v := testVault(t, storage.NewMemory())
	k1, k2 := fakeKey(1), fakeKey(2)
	v.Add(context.Background(), k1, testMnemonic(t), []byte("old-pass"))
	v.Add(context.Background(), k2, testMnemonic(t), []byte("old-pass"))

	if err := v.ChangePassword(context.Background(), []byte("old-pass"), []byte("new-pass")); err != nil {
		t.Fatalf("ChangePassword() error: %v", err)
	}
	for _, k := range []wallet.WalletKey{k1, k2} {
		if _, err := v.Mnemonic(k.ID(), []byte("new-pass")); err != nil {
			t.Errorf("key %s should open with new password: %v", k.ID(), err)
		}
		if _, err := v.Mnemonic(k.ID(), []byte("old-pass")); !errors.Is(err, ErrAuthenticationFailed) {
			t.Errorf("key %s should not open with old password", k.ID())
		}
	}
}

// putEntry writes an entry for id straight into version ver, bypassing the
// password check of Add.
func putEntry(t *testing.T, v *Vault, ver Version, id, password string) {
	t.Helper()
	e, err := Encrypt(ver, id, testWords, []byte(password), fastParams())
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}
	data, err := marshalEntry(e)
	if err != nil {
		t.Fatalf("marshalEntry() error: %v", err)
	}
	if err := v.spaces[ver].Put([]byte(id), data); err != nil {
		t.Fatalf("Put() error: %v", err)
	}
}

func TestChangePassword_AllOrNothing(t *testing.T) {
	v := testVault(t, storage.NewMemory())
	k1, k2 := fakeKey(1), fakeKey(2)
	if err := v.Add(context.Background(), k1, testMnemonic(t), []byte("pass-one")); err != nil {
		t.Fatalf("Add() error: %v", err)
	}
	putEntry(t, v, V4, k2.ID(), "pass-two")

	err := v.ChangePassword(context.Background(), []byte("pass-one"), []byte("new-pass"))
	if !errors.Is(err, ErrAuthenticationFailed) {
		t.Fatalf("ChangePassword() error = %v, want ErrAuthenticationFailed", err)
	}
	if _, err := v.Mnemonic(k1.ID(), []byte("pass-one")); err != nil {
		t.Error("first key must still open with its old password")
	}
	if _, err := v.Mnemonic(k1.ID(), []byte("new-pass")); err == nil {
		t.Error("no entry may be re-encrypted when another one fails")
	}
}

func TestChangePassword_CoversLegacyEntries(t *testing.T) {
	db := storage.NewMemory()
	legacy := legacyVault(t, db, V2, 1, "old-pass")
	v := testVault(t, db)
	k := fakeKey(9)
	if err := v.Add(context.Background(), k, testMnemonic(t), []byte("old-pass")); err != nil {
		t.Fatalf("Add() error: %v", err)
	}

	if err := v.ChangePassword(context.Background(), []byte("old-pass"), []byte("new-pass")); err != nil {
		t.Fatalf("ChangePassword() error: %v", err)
	}
	if _, err := v.decryptWords(V2, legacy[0], []byte("new-pass")); err != nil {
		t.Errorf("v2 entry should open with the new password: %v", err)
	}
	if _, err := v.Mnemonic(k.ID(), []byte("new-pass")); err != nil {
		t.Errorf("v4 entry should open with the new password: %v", err)
	}
	if err := v.MigrateChain(context.Background(), []byte("new-pass")); err != nil {
		t.Errorf("MigrateChain() with the new password: %v", err)
	}
}

func TestAdd_RejectsSecondPassword(t *testing.T) {
	v := testVault(t, storage.NewMemory())
	if err := v.Add(context.Background(), fakeKey(1), testMnemonic(t), []byte("pass-one")); err != nil {
		t.Fatalf("Add() error: %v", err)
	}
	err := v.Add(context.Background(), fakeKey(2), testMnemonic(t), []byte("pass-two"))
	if !errors.Is(err, ErrAuthenticationFailed) {
		t.Fatalf("Add() with another password error = %v, want ErrAuthenticationFailed", err)
	}
	if has, _ := v.Has(CurrentVersion, fakeKey(2).ID()); has {
		t.Error("rejected Add() must not write")
	}
}

func TestAdd_ChecksLegacyPassword(t *testing.T) {
	db := storage.NewMemory()
	v := testVault(t, db)
	if empty, err := v.Empty(); err != nil || !empty {
		t.Fatalf("Empty() = %v, %v on a new vault", empty, err)
	}
	legacyVault(t, db, V3, 1, "legacy")
	if empty, _ := v.Empty(); empty {
		t.Error("Empty() should see legacy entries")
	}

	if err := v.Add(context.Background(), fakeKey(7), testMnemonic(t), []byte("other")); !errors.Is(err, ErrAuthenticationFailed) {
		t.Errorf("Add() error = %v, want ErrAuthenticationFailed", err)
	}
	if err := v.Add(context.Background(), fakeKey(7), testMnemonic(t), []byte("legacy")); err != nil {
		t.Errorf("Add() with the vault password: %v", err)
	}
}

// A key added while a password change waits for a busy key must not end up
// under the old password.
func TestChangePassword_ConcurrentAdd(t *testing.T) {
	v := testVault(t, storage.NewMemory())
	ctx := context.Background()
	a, b := fakeKey(1), fakeKey(2)
	if err := v.Add(ctx, a, testMnemonic(t), []byte("old-pass")); err != nil {
		t.Fatalf("Add() error: %v", err)
	}

	held := make(chan struct{})
	release := make(chan struct{})
	go v.Queue().Do(ctx, a.ID(), func() error {
		close(held)
		<-release
		return nil
	})
	<-held

	changed := make(chan error, 1)
	go func() {
		changed <- v.ChangePassword(ctx, []byte("old-pass"), []byte("new-pass"))
	}()
	deadline := time.Now().Add(2 * time.Second)
	for v.Queue().Pending() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("ChangePassword() never queued behind the busy key")
		}
		time.Sleep(time.Millisecond)
	}

	m := testMnemonic(t)
	added := make(chan error, 1)
	go func() {
		added <- v.Add(ctx, b, m, []byte("old-pass"))
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)

	if err := <-changed; err != nil {
		t.Fatalf("ChangePassword() error: %v", err)
	}
	if err := <-added; !errors.Is(err, ErrAuthenticationFailed) {
		t.Fatalf("Add() with the replaced password error = %v, want ErrAuthenticationFailed", err)
	}
	if _, err := v.Mnemonic(a.ID(), []byte("new-pass")); err != nil {
		t.Errorf("existing key should open with the new password: %v", err)
	}
	if has, _ := v.Has(CurrentVersion, b.ID()); has {
		t.Error("vault must not hold an entry under the old password")
	}
}

func TestChangePassword_Validation(t *testing.T) {
	v := testVault(t, storage.NewMemory())
	if err := v.ChangePassword(context.Background(), []byte("pass"), []byte("12")); !errors.Is(err, ErrPasswordTooShort) {
		t.Errorf("error = %v, want ErrPasswordTooShort", err)
	}
	if err := v.ChangePassword(context.Background(), []byte("pass"), []byte("1234")); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("error on empty vault = %v, want ErrKeyNotFound", err)
	}
}
