package ftpd

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Permission letters, as enumerated in spec.md §3.
const (
	PermChangeDir  = 'e'
	PermList       = 'l'
	PermRetrieve   = 'r'
	PermAppend     = 'a'
	PermDelete     = 'd'
	PermRename     = 'f'
	PermMakeDir    = 'm'
	PermStore      = 'w'
	PermChmod      = 'M'
	PermModifyTime = 'T'
)

const validPermLetters = string(rune(PermChangeDir)) +
	string(rune(PermList)) + string(rune(PermRetrieve)) + string(rune(PermAppend)) +
	string(rune(PermDelete)) + string(rune(PermRename)) + string(rune(PermMakeDir)) +
	string(rune(PermStore)) + string(rune(PermChmod)) + string(rune(PermModifyTime))

// User is a single account known to the Authorizer (spec.md §3).
type User struct {
	Name        string
	Password    string // cleartext, or left empty and validated via PasswordValidator
	HomeDir     string // real path
	Perm        string // base permission letters
	LoginMsg    string
	QuitMsg     string
	overrides   []permOverride
	overridesMu sync.RWMutex
}

type permOverride struct {
	dir       string
	perm      string
	recursive bool
}

// PasswordValidator allows pluggable password checking (cleartext compare,
// bcrypt, PAM, ...) instead of the default exact-match behavior.
type PasswordValidator func(user *User, password string) bool

// Authorizer implements C6: user lookup, delayed-failure password
// validation, per-path permission computation, and the impersonation hooks
// real-user drivers override (spec.md §4.6).
type Authorizer struct {
	mu                sync.RWMutex
	users             map[string]*User
	PasswordValidator PasswordValidator
	AuthFailedDelay   time.Duration // default 3s, see spec.md §4.6
	scheduler         *Scheduler
}

// NewAuthorizer builds an empty Authorizer. scheduler is used to delay
// failed-authentication responses instead of blocking a goroutine in
// time.Sleep (spec.md §4.6: "scheduled on the reactor — not a blocking
// sleep").
func NewAuthorizer(scheduler *Scheduler) *Authorizer {
	return &Authorizer{
		users:           make(map[string]*User),
		AuthFailedDelay: 3 * time.Second,
		scheduler:       scheduler,
	}
}

func validatePermString(perm string) error {
	for _, r := range perm {
		if !strings.ContainsRune(validPermLetters, r) {
			return fmt.Errorf("invalid permission letter %q", r)
		}
	}

	return nil
}

// AddUser registers a user. It rejects duplicates and ill-formed permission
// strings; granting write permissions to "anonymous" is not rejected, and
// no warning is logged for it.
func (a *Authorizer) AddUser(name, password, homeDir, perm string, loginMsg, quitMsg string) (*User, error) {
	if err := validatePermString(perm); err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.users[name]; exists {
		return nil, fmt.Errorf("user %q already registered", name)
	}

	u := &User{
		Name:     name,
		Password: password,
		HomeDir:  homeDir,
		Perm:     perm,
		LoginMsg: loginMsg,
		QuitMsg:  quitMsg,
	}
	a.users[name] = u

	return u, nil
}

// AddAnonymous is an alias for AddUser with the conventional "anonymous"
// username and an empty password.
func (a *Authorizer) AddAnonymous(homeDir, perm, loginMsg, quitMsg string) (*User, error) {
	return a.AddUser("anonymous", "", homeDir, perm, loginMsg, quitMsg)
}

// OverridePerm attaches a per-subtree permission override to user; the most
// specific (longest directory prefix) override wins when HasPerm is
// evaluated.
func (a *Authorizer) OverridePerm(username, dir, perm string, recursive bool) error {
	if err := validatePermString(perm); err != nil {
		return err
	}

	a.mu.RLock()
	u, ok := a.users[username]
	a.mu.RUnlock()

	if !ok {
		return fmt.Errorf("unknown user %q", username)
	}

	u.overridesMu.Lock()
	u.overrides = append(u.overrides, permOverride{dir: dir, perm: perm, recursive: recursive})
	u.overridesMu.Unlock()

	return nil
}

// AuthResult is the outcome of ValidateAuthentication: either Ok carries a
// resolved *User, or Failed carries the client-facing reason.
type AuthResult struct {
	User   *User
	Failed *AuthenticationError
}

// ValidateAuthentication checks user/pass. On failure, it schedules the
// delayed response via onFailure (called AuthFailedDelay after this method
// returns, when a timer ticks the scheduler) instead of blocking; onFailure
// receives the AuthResult to send to the client. With a nil scheduler,
// onFailure is called before this method returns.
func (a *Authorizer) ValidateAuthentication(username, password string, onFailure func(AuthResult)) AuthResult {
	a.mu.RLock()
	u, ok := a.users[username]
	a.mu.RUnlock()

	ok = ok && a.checkPassword(u, password)

	if ok {
		return AuthResult{User: u}
	}

	result := AuthResult{Failed: NewAuthenticationError("Authentication failed")}

	if onFailure != nil && a.scheduler != nil {
		a.scheduler.CallLater(a.AuthFailedDelay, func() { onFailure(result) })
		time.AfterFunc(a.AuthFailedDelay, func() { a.scheduler.Tick() })
	} else if onFailure != nil {
		onFailure(result)
	}

	return result
}

func (a *Authorizer) checkPassword(u *User, password string) bool {
	if u == nil {
		return false
	}

	if a.PasswordValidator != nil {
		return a.PasswordValidator(u, password)
	}

	if u.Name == "anonymous" {
		return true
	}

	return u.Password == password
}

// HasPerm computes the effective permission for letter on path: the base
// permission plus any overrides, most-specific-directory-prefix wins.
func (a *Authorizer) HasPerm(u *User, letter byte, virtualPath string) bool {
	if u == nil {
		return false
	}

	perm := u.Perm

	u.overridesMu.RLock()
	bestLen := -1

	for _, ov := range u.overrides {
		if !strings.HasPrefix(virtualPath, ov.dir) {
			continue
		}

		if !ov.recursive && virtualPath != ov.dir {
			// Non-recursive overrides apply to the directory itself and
			// its direct children, not to deeper descendants.
			if !isDirectChild(ov.dir, virtualPath) {
				continue
			}
		}

		if len(ov.dir) > bestLen {
			bestLen = len(ov.dir)
			perm = ov.perm
		}
	}
	u.overridesMu.RUnlock()

	return strings.IndexByte(perm, letter) >= 0
}

func isDirectChild(dir, p string) bool {
	if dir == "/" {
		return strings.Count(strings.TrimPrefix(p, "/"), "/") == 0
	}

	rest := strings.TrimPrefix(p, dir)

	return strings.Count(strings.Trim(rest, "/"), "/") == 0
}

// GetUser returns the registered user by name, if any.
func (a *Authorizer) GetUser(name string) (*User, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	u, ok := a.users[name]

	return u, ok
}

// GetHomeDir returns u's home directory.
func (a *Authorizer) GetHomeDir(u *User) string { return u.HomeDir }

// GetMsgLogin returns u's login banner, if any.
func (a *Authorizer) GetMsgLogin(u *User) string { return u.LoginMsg }

// GetMsgQuit returns u's quit banner, if any.
func (a *Authorizer) GetMsgQuit(u *User) string { return u.QuitMsg }

// ImpersonationHooks lets a real-user authorizer (UNIX/Windows) change
// effective uid/gid around filesystem operations; the default Authorizer's
// hooks are no-ops, matching spec.md §4.6.
type ImpersonationHooks interface {
	ImpersonateUser(username, password string) error
	TerminateImpersonation(username string) error
}

// ImpersonateUser is a no-op in the virtual Authorizer.
func (a *Authorizer) ImpersonateUser(string, string) error { return nil }

// TerminateImpersonation is a no-op in the virtual Authorizer.
func (a *Authorizer) TerminateImpersonation(string) error { return nil }
