package rbac

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/cpd-events/backoffice/internal/models"
)

// memStore is an in-memory Store used by service and handler tests.
type memStore struct {
	mu        sync.Mutex
	perms     map[uuid.UUID]models.Permission
	roles     map[uuid.UUID]models.Role
	users     map[uuid.UUID]models.User
	rolePerms map[uuid.UUID]map[uuid.UUID]bool
	userRoles map[uuid.UUID]map[uuid.UUID]bool

	slugLoads int
}

func newMemStore() *memStore {
	return &memStore{
		perms:     map[uuid.UUID]models.Permission{},
		roles:     map[uuid.UUID]models.Role{},
		users:     map[uuid.UUID]models.User{},
		rolePerms: map[uuid.UUID]map[uuid.UUID]bool{},
		userRoles: map[uuid.UUID]map[uuid.UUID]bool{},
	}
}

func (m *memStore) addUser(name string) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New()
	m.users[id] = models.User{ID: id, Name: name, Email: name + "@example.com"}
	return id
}

func (m *memStore) CreatePermission(_ context.Context, p *models.Permission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.perms {
		if e.Slug == p.Slug {
			return ErrSlugTaken
		}
		if e.Name == p.Name {
			return ErrNameTaken
		}
	}
	p.ID = uuid.New()
	p.CreatedAt, p.UpdatedAt = time.Now(), time.Now()
	m.perms[p.ID] = *p
	return nil
}

func (m *memStore) GetPermission(_ context.Context, id uuid.UUID) (*models.Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.perms[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (m *memStore) ListPermissions(context.Context) ([]models.Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []models.Permission
	for _, p := range m.perms {
		list = append(list, p)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Slug < list[j].Slug })
	return list, nil
}

func (m *memStore) ExistingPermissionSlugs(_ context.Context, slugs []string) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	found := map[string]bool{}
	for _, p := range m.perms {
		for _, s := range slugs {
			if p.Slug == s {
				found[s] = true
			}
		}
	}
	return found, nil
}

func (m *memStore) UpdatePermission(_ context.Context, p *models.Permission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.perms[p.ID]; !ok {
		return ErrNotFound
	}
	for id, e := range m.perms {
		if id != p.ID && e.Slug == p.Slug {
			return ErrSlugTaken
		}
	}
	m.perms[p.ID] = *p
	return nil
}

func (m *memStore) DeletePermissions(_ context.Context, ids []uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, id := range ids {
		if _, ok := m.perms[id]; ok {
			delete(m.perms, id)
			for _, set := range m.rolePerms {
				delete(set, id)
			}
			n++
		}
	}
	return n, nil
}

func (m *memStore) PermissionRoles(_ context.Context, permissionID uuid.UUID) ([]models.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []models.Role
	for roleID, set := range m.rolePerms {
		if set[permissionID] {
			list = append(list, m.roles[roleID])
		}
	}
	return list, nil
}

func (m *memStore) CreateRole(_ context.Context, role *models.Role, permissionIDs []uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.roles {
		if e.Slug == role.Slug {
			return ErrSlugTaken
		}
		if e.Name == role.Name {
			return ErrNameTaken
		}
	}
	set, err := m.permissionSet(permissionIDs)
	if err != nil {
		return err
	}
	role.ID = uuid.New()
	m.roles[role.ID] = *role
	m.rolePerms[role.ID] = set
	return nil
}

// permissionSet mirrors the foreign key on permission_role. Callers hold mu.
func (m *memStore) permissionSet(ids []uuid.UUID) (map[uuid.UUID]bool, error) {
	set := map[uuid.UUID]bool{}
	for _, pid := range ids {
		if _, ok := m.perms[pid]; !ok {
			return nil, fmt.Errorf("%w: unknown permission id", ErrInvalidInput)
		}
		set[pid] = true
	}
	return set, nil
}

func (m *memStore) GetRole(_ context.Context, id uuid.UUID) (*models.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.roles[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (m *memStore) GetRoleBySlug(_ context.Context, slug string) (*models.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.roles {
		if r.Slug == slug {
			r := r
			return &r, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memStore) ListRoles(context.Context) ([]models.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []models.Role
	for _, r := range m.roles {
		list = append(list, r)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list, nil
}

func (m *memStore) UpdateRole(_ context.Context, role *models.Role, permissionIDs *[]uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.roles[role.ID]; !ok {
		return ErrNotFound
	}
	if permissionIDs != nil {
		set, err := m.permissionSet(*permissionIDs)
		if err != nil {
			return err
		}
		m.rolePerms[role.ID] = set
	}
	m.roles[role.ID] = *role
	return nil
}

func (m *memStore) DeleteRole(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.roles[id]; !ok {
		return ErrNotFound
	}
	delete(m.roles, id)
	delete(m.rolePerms, id)
	for _, set := range m.userRoles {
		delete(set, id)
	}
	return nil
}

func (m *memStore) RolePermissions(_ context.Context, roleID uuid.UUID) ([]models.Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []models.Permission
	for pid := range m.rolePerms[roleID] {
		list = append(list, m.perms[pid])
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Slug < list[j].Slug })
	return list, nil
}

func (m *memStore) RoleHasPermission(_ context.Context, roleID uuid.UUID, slug string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for pid := range m.rolePerms[roleID] {
		if m.perms[pid].Slug == slug {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) SyncRolePermissions(_ context.Context, roleID uuid.UUID, permissionIDs []uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := map[uuid.UUID]bool{}
	for _, pid := range permissionIDs {
		if _, ok := m.perms[pid]; !ok {
			return ErrNotFound
		}
		set[pid] = true
	}
	m.rolePerms[roleID] = set
	return nil
}

func (m *memStore) AttachPermissions(_ context.Context, roleIDs, permissionIDs []uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rid := range roleIDs {
		if _, ok := m.roles[rid]; !ok {
			return ErrNotFound
		}
		for _, pid := range permissionIDs {
			if _, ok := m.perms[pid]; !ok {
				return ErrNotFound
			}
			if m.rolePerms[rid] == nil {
				m.rolePerms[rid] = map[uuid.UUID]bool{}
			}
			m.rolePerms[rid][pid] = true
		}
	}
	return nil
}

func (m *memStore) DetachPermission(_ context.Context, roleID, permissionID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rolePerms[roleID], permissionID)
	return nil
}

func (m *memStore) RoleUsers(_ context.Context, roleID uuid.UUID) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []models.User
	for uid, set := range m.userRoles {
		if set[roleID] {
			list = append(list, m.users[uid])
		}
	}
	return list, nil
}

func (m *memStore) UserRoles(_ context.Context, userID uuid.UUID) ([]models.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []models.Role
	for rid := range m.userRoles[userID] {
		list = append(list, m.roles[rid])
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list, nil
}

func (m *memStore) UserHasRole(_ context.Context, userID uuid.UUID, slug string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for rid := range m.userRoles[userID] {
		if m.roles[rid].Slug == slug {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) UserPermissionSlugs(_ context.Context, userID uuid.UUID) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slugLoads++
	seen := map[string]bool{}
	var slugs []string
	for rid := range m.userRoles[userID] {
		for pid := range m.rolePerms[rid] {
			s := m.perms[pid].Slug
			if !seen[s] {
				seen[s] = true
				slugs = append(slugs, s)
			}
		}
	}
	sort.Strings(slugs)
	return slugs, nil
}

func (m *memStore) SyncUserRoles(_ context.Context, userID uuid.UUID, roleIDs []uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := map[uuid.UUID]bool{}
	for _, rid := range roleIDs {
		if _, ok := m.roles[rid]; !ok {
			return ErrNotFound
		}
		set[rid] = true
	}
	m.userRoles[userID] = set
	return nil
}

func (m *memStore) AttachRole(_ context.Context, userID, roleID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.roles[roleID]; !ok {
		return ErrNotFound
	}
	if m.userRoles[userID] == nil {
		m.userRoles[userID] = map[uuid.UUID]bool{}
	}
	m.userRoles[userID][roleID] = true
	return nil
}

func (m *memStore) DetachRole(_ context.Context, userID, roleID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.userRoles[userID], roleID)
	return nil
}

func (m *memStore) UserIDsForRoles(_ context.Context, roleIDs []uuid.UUID) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []uuid.UUID
	for uid, set := range m.userRoles {
		for _, rid := range roleIDs {
			if set[rid] {
				ids = append(ids, uid)
				break
			}
		}
	}
	return ids, nil
}

func (m *memStore) UserIDsForPermissions(_ context.Context, permissionIDs []uuid.UUID) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []uuid.UUID
	for uid, roles := range m.userRoles {
	roleLoop:
		for rid := range roles {
			for _, pid := range permissionIDs {
				if m.rolePerms[rid][pid] {
					ids = append(ids, uid)
					break roleLoop
				}
			}
		}
	}
	return ids, nil
}

// pausingStore holds the first armed UserPermissionSlugs call after it has read the store,
// until release is closed.
type pausingStore struct {
	*memStore
	armed   atomic.Bool
	loaded  chan struct{}
	release chan struct{}
}

func newPausingStore(inner *memStore) *pausingStore {
	return &pausingStore{memStore: inner, loaded: make(chan struct{}), release: make(chan struct{})}
}

func (p *pausingStore) UserPermissionSlugs(ctx context.Context, userID uuid.UUID) ([]string, error) {
	slugs, err := p.memStore.UserPermissionSlugs(ctx, userID)
	if p.armed.CompareAndSwap(true, false) {
		close(p.loaded)
		<-p.release
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	return slugs, err
}
