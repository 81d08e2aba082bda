package inmemdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/opiskelu/palaute/core/course"
)

type courseRepository struct {
	db *DB
}

var _ course.Repository = (*courseRepository)(nil)

func NewCourseRepository(db *DB) *courseRepository {
	return &courseRepository{db: db}
}

func (repo *courseRepository) UpsertCourseUnits(_ context.Context, units []course.CourseUnit) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	now := time.Now().UTC()
	for _, cu := range units {
		if old, ok := repo.db.courseUnits[cu.ID]; ok {
			old.Name = cu.Name
			old.CourseCode = cu.CourseCode
			old.ValidityPeriod = cu.ValidityPeriod
			old.UpdatedAt = now
			continue
		}
		cu := cu
		cu.CreatedAt = now
		cu.UpdatedAt = now
		repo.db.courseUnits[cu.ID] = &cu
	}
	return nil
}

func (repo *courseRepository) CourseUnitByCode(_ context.Context, code string) (course.CourseUnit, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var oldest *course.CourseUnit
	for _, cu := range repo.db.courseUnits {
		if cu.CourseCode != code {
			continue
		}
		if oldest == nil || cu.CreatedAt.Before(oldest.CreatedAt) {
			oldest = cu
		}
	}
	if oldest == nil {
		return course.CourseUnit{}, course.ErrNotFound
	}
	return *oldest, nil
}

func (repo *courseRepository) CourseUnitByCodePrefix(_ context.Context, prefix string) (course.CourseUnit, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	lower := strings.ToLower(prefix)
	for _, cu := range repo.db.courseUnits {
		if strings.HasPrefix(strings.ToLower(cu.CourseCode), lower) {
			return *cu, nil
		}
	}
	return course.CourseUnit{}, course.ErrNotFound
}

func (repo *courseRepository) CourseUnitsByCourseCode(_ context.Context, code string) ([]course.CourseUnit, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	units := make([]course.CourseUnit, 0)
	for _, cu := range repo.db.courseUnits {
		if cu.CourseCode == code {
			units = append(units, *cu)
		}
	}
	sort.Slice(units, func(i, j int) bool { return units[i].UpdatedAt.After(units[j].UpdatedAt) })
	return units, nil
}

func (repo *courseRepository) ExistingCourseUnitIDs(_ context.Context, ids []string) ([]string, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	existing := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := repo.db.courseUnits[id]; ok {
			existing = append(existing, id)
		}
	}
	return existing, nil
}

func (repo *courseRepository) CreateCourseUnitOrganisations(_ context.Context, links []course.CourseUnitOrganisation) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, link := range links {
		key := link.CourseUnitID + "|" + link.OrganisationID + "|" + link.Type
		if _, ok := repo.db.courseUnitOrgs[key]; ok {
			continue // ignore duplicates
		}
		repo.db.courseUnitOrgs[key] = link
	}
	return nil
}

func (repo *courseRepository) PrimaryOrganisationID(_ context.Context, courseUnitID string) (string, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, link := range repo.db.courseUnitOrgs {
		if link.CourseUnitID == courseUnitID && link.Type == course.OrgTypePrimary {
			return link.OrganisationID, nil
		}
	}
	return "", course.ErrNotFound
}

func (repo *courseRepository) CourseRealisationDates(_ context.Context, id string) (course.RealisationDates, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	cr, ok := repo.db.courseRealisations[id]
	if !ok {
		return course.RealisationDates{}, course.ErrNotFound
	}
	return course.RealisationDates{ID: cr.ID, StartDate: cr.StartDate, EndDate: cr.EndDate}, nil
}

func (repo *courseRepository) CreateCourseRealisation(_ context.Context, cr course.CourseRealisation) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	now := time.Now().UTC()
	cr.CreatedAt = now
	cr.UpdatedAt = now
	repo.db.courseRealisations[cr.ID] = &cr
	return nil
}

func (repo *courseRepository) UpdateCourseRealisation(_ context.Context, cr course.CourseRealisation) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	old, ok := repo.db.courseRealisations[cr.ID]
	if !ok {
		return course.ErrNotFound
	}
	old.Name = cr.Name
	old.StartDate = cr.StartDate
	old.EndDate = cr.EndDate
	old.EducationalInstitutionURN = cr.EducationalInstitutionURN
	old.IsMoocCourse = cr.IsMoocCourse
	old.TeachingLanguages = cr.TeachingLanguages
	old.UpdatedAt = time.Now().UTC()
	return nil
}

func (repo *courseRepository) CreateCourseRealisationOrganisations(_ context.Context, links []course.CourseRealisationOrganisation) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, link := range links {
		key := link.CourseRealisationID + "|" + link.OrganisationID + "|" + link.Type
		if _, ok := repo.db.realisationOrgs[key]; ok {
			continue
		}
		repo.db.realisationOrgs[key] = link
	}
	return nil
}

func (repo *courseRepository) DeleteCourseRealisationOrganisations(_ context.Context, realisationIDs []string) (int, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	count := 0
	for key, link := range repo.db.realisationOrgs {
		if contains(realisationIDs, link.CourseRealisationID) {
			delete(repo.db.realisationOrgs, key)
			count++
		}
	}
	return count, nil
}

func (repo *courseRepository) DeleteCourseRealisations(_ context.Context, ids []string) (int, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	count := 0
	for _, id := range ids {
		if _, ok := repo.db.courseRealisations[id]; ok {
			delete(repo.db.courseRealisations, id)
			count++
		}
	}
	return count, nil
}

func (repo *courseRepository) OrganisationsByCourseUnitID(_ context.Context, courseUnitID string) ([]course.Organisation, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	orgs := make([]course.Organisation, 0)
	for _, link := range repo.db.courseUnitOrgs {
		if link.CourseUnitID != courseUnitID {
			continue
		}
		if org, ok := repo.db.organisations[link.OrganisationID]; ok {
			orgs = append(orgs, *org)
		}
	}
	return orgs, nil
}

func contains(ids []string, id string) bool {
	for _, i := range ids {
		if i == id {
			return true
		}
	}
	return false
}
