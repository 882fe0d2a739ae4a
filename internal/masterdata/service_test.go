package masterdata

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/campusledger/campusledger/internal/shared"
)

type memRepo struct {
	sessions    map[int64]AcademicSession
	classes     map[int64]Class
	students    map[int64]Student
	feeGroups   map[int64]FeeGroup
	concessions map[int64]ConcessionCategory
	nextID      int64
}

func newMemRepo() *memRepo {
	return &memRepo{
		sessions:    map[int64]AcademicSession{},
		classes:     map[int64]Class{},
		students:    map[int64]Student{},
		feeGroups:   map[int64]FeeGroup{},
		concessions: map[int64]ConcessionCategory{},
	}
}

func (m *memRepo) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memRepo) CreateSession(_ context.Context, s AcademicSession) (*AcademicSession, error) {
	s.ID = m.id()
	m.sessions[s.ID] = s
	return &s, nil
}

func (m *memRepo) ListSessions(_ context.Context, branchID int64) ([]AcademicSession, error) {
	var out []AcademicSession
	for _, s := range m.sessions {
		if s.BranchID == branchID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memRepo) GetSession(_ context.Context, branchID, id int64) (*AcademicSession, error) {
	s, ok := m.sessions[id]
	if !ok || s.BranchID != branchID {
		return nil, shared.NotFoundError("session")
	}
	return &s, nil
}

func (m *memRepo) ActiveSession(_ context.Context, branchID int64) (*AcademicSession, error) {
	for _, s := range m.sessions {
		if s.BranchID == branchID && s.IsActive {
			return &s, nil
		}
	}
	return nil, shared.NotFoundError("active session")
}

func (m *memRepo) CreateClass(_ context.Context, c Class) (*Class, error) {
	c.ID = m.id()
	m.classes[c.ID] = c
	return &c, nil
}

func (m *memRepo) ListClasses(_ context.Context, branchID, sessionID int64) ([]Class, error) {
	var out []Class
	for _, c := range m.classes {
		if c.BranchID == branchID && (sessionID == 0 || c.SessionID == sessionID) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memRepo) GetClass(_ context.Context, branchID, id int64) (*Class, error) {
	c, ok := m.classes[id]
	if !ok || c.BranchID != branchID {
		return nil, shared.NotFoundError("class")
	}
	return &c, nil
}

func (m *memRepo) CreateStudent(_ context.Context, s Student) (*Student, error) {
	s.ID = m.id()
	m.students[s.ID] = s
	return &s, nil
}

func (m *memRepo) ListStudents(_ context.Context, branchID, classID int64) ([]Student, error) {
	var out []Student
	for _, s := range m.students {
		if s.BranchID == branchID && (classID == 0 || s.ClassID == classID) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memRepo) GetStudent(_ context.Context, branchID, id int64) (*Student, error) {
	s, ok := m.students[id]
	if !ok || s.BranchID != branchID {
		return nil, shared.NotFoundError("student")
	}
	return &s, nil
}

func (m *memRepo) CreateFeeGroup(_ context.Context, g FeeGroup) (*FeeGroup, error) {
	g.ID = m.id()
	m.feeGroups[g.ID] = g
	return &g, nil
}

func (m *memRepo) GetFeeGroup(_ context.Context, branchID, id int64) (*FeeGroup, error) {
	g, ok := m.feeGroups[id]
	if !ok || g.BranchID != branchID {
		return nil, shared.NotFoundError("fee group")
	}
	return &g, nil
}

func (m *memRepo) ListFeeGroups(_ context.Context, branchID int64) ([]FeeGroup, error) {
	var out []FeeGroup
	for _, g := range m.feeGroups {
		if g.BranchID == branchID {
			out = append(out, g)
		}
	}
	return out, nil
}

func (m *memRepo) ListFeeGroupsForClass(_ context.Context, branchID, classID int64) ([]FeeGroup, error) {
	var out []FeeGroup
	for _, g := range m.feeGroups {
		if g.BranchID != branchID {
			continue
		}
		for _, id := range g.ClassIDs {
			if id == classID {
				out = append(out, g)
				break
			}
		}
	}
	return out, nil
}

func (m *memRepo) CreateConcession(_ context.Context, c ConcessionCategory) (*ConcessionCategory, error) {
	c.ID = m.id()
	m.concessions[c.ID] = c
	return &c, nil
}

func (m *memRepo) ListConcessions(_ context.Context, branchID int64) ([]ConcessionCategory, error) {
	var out []ConcessionCategory
	for _, c := range m.concessions {
		if c.BranchID == branchID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memRepo) GetConcession(_ context.Context, branchID, id int64) (*ConcessionCategory, error) {
	c, ok := m.concessions[id]
	if !ok || c.BranchID != branchID {
		return nil, shared.NotFoundError("concession category")
	}
	return &c, nil
}

var _ RepositoryPort = (*memRepo)(nil)

func seedSession(t *testing.T, svc *Service) *AcademicSession {
	t.Helper()
	sess, err := svc.CreateSession(context.Background(), AcademicSession{
		BranchID:  1,
		Name:      "2025-2026",
		StartDate: time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, time.March, 31, 0, 0, 0, 0, time.UTC),
		IsActive:  true,
	})
	require.NoError(t, err)
	return sess
}

func TestCreateSessionValidatesDates(t *testing.T) {
	svc := NewService(newMemRepo())

	_, err := svc.CreateSession(context.Background(), AcademicSession{
		BranchID:  1,
		Name:      "backwards",
		StartDate: time.Date(2026, time.March, 31, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC),
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreateClassRequiresSession(t *testing.T) {
	svc := NewService(newMemRepo())

	_, err := svc.CreateClass(context.Background(), Class{BranchID: 1, SessionID: 99, Name: "VII-A"})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCreateStudentChecksReferences(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo)
	ctx := context.Background()
	sess := seedSession(t, svc)

	class, err := svc.CreateClass(ctx, Class{BranchID: 1, SessionID: sess.ID, Name: "VII-A"})
	require.NoError(t, err)

	_, err = svc.CreateStudent(ctx, Student{BranchID: 1, ClassID: 99, AdmissionNo: "A-1", Name: "Asha"})
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = svc.CreateStudent(ctx, Student{BranchID: 1, ClassID: class.ID, AdmissionNo: "A-1", Name: "Asha", ConcessionID: 42})
	require.ErrorIs(t, err, shared.ErrNotFound)

	created, err := svc.CreateStudent(ctx, Student{BranchID: 1, ClassID: class.ID, AdmissionNo: "A-1", Name: "Asha"})
	require.NoError(t, err)
	require.NotZero(t, created.ID)
}

func TestCreateFeeGroupRejectsUnknownPeriodicity(t *testing.T) {
	svc := NewService(newMemRepo())

	_, err := svc.CreateFeeGroup(context.Background(), FeeGroup{BranchID: 1, Name: "Tuition", Periodicity: "weekly", Amount: 100})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreateFeeGroupRejectsNonPositiveAmount(t *testing.T) {
	svc := NewService(newMemRepo())

	_, err := svc.CreateFeeGroup(context.Background(), FeeGroup{BranchID: 1, Name: "Tuition", Periodicity: PeriodicityMonthly, Amount: 0})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreateConcessionBoundsPercent(t *testing.T) {
	svc := NewService(newMemRepo())

	_, err := svc.CreateConcession(context.Background(), ConcessionCategory{
		BranchID: 1, Name: "Sibling",
		Rules: []ConcessionRule{{FeeGroupID: 1, PercentDiscount: 140}},
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestListFeeGroupsForClassFiltersMapping(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo)
	ctx := context.Background()
	sess := seedSession(t, svc)

	class, err := svc.CreateClass(ctx, Class{BranchID: 1, SessionID: sess.ID, Name: "VII-A"})
	require.NoError(t, err)
	other, err := svc.CreateClass(ctx, Class{BranchID: 1, SessionID: sess.ID, Name: "VIII-B"})
	require.NoError(t, err)

	_, err = svc.CreateFeeGroup(ctx, FeeGroup{BranchID: 1, Name: "Tuition", Periodicity: PeriodicityMonthly, Amount: 1000, ClassIDs: []int64{class.ID}})
	require.NoError(t, err)
	_, err = svc.CreateFeeGroup(ctx, FeeGroup{BranchID: 1, Name: "Lab", Periodicity: PeriodicityMonthly, Amount: 200, ClassIDs: []int64{other.ID}})
	require.NoError(t, err)

	groups, err := svc.ListFeeGroupsForClass(ctx, 1, class.ID)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	require.Equal(t, "Tuition", groups[0].Name)
}

func TestActiveSession(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo)
	_, err := svc.ActiveSession(context.Background(), 1)
	require.ErrorIs(t, err, shared.ErrNotFound)

	seedSession(t, svc)
	sess, err := svc.ActiveSession(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, "2025-2026", sess.Name)
}
