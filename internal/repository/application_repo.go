package repository

import (
	"context"
	"errors"
	"time"

	"backend/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ApplicationFilter narrows admin listings. Zero values mean "no filter".
type ApplicationFilter struct {
	Status string
	// Search matches full name, DNI or e-mail (case-insensitive substring).
	Search string
	Page   int
	Limit  int
}

// ApplicationRepository defines the interface for data access of loan applications.
type ApplicationRepository interface {
	Create(ctx context.Context, app *model.LoanApplication) error
	GetByID(ctx context.Context, id string) (*model.LoanApplication, error)
	// GetByIDForUpdate locks the row for the duration of the surrounding
	// transaction. Two admins confirming the same fee concurrently serialize
	// here instead of clobbering each other blind.
	GetByIDForUpdate(ctx context.Context, id string) (*model.LoanApplication, error)
	ListByOwner(ctx context.Context, ownerID string) ([]model.LoanApplication, error)
	// LatestByOwner returns (nil, nil) when the owner has no applications;
	// an error always means the lookup itself failed.
	LatestByOwner(ctx context.Context, ownerID string) (*model.LoanApplication, error)
	List(ctx context.Context, filter ApplicationFilter) ([]model.LoanApplication, int64, error)
	Save(ctx context.Context, app *model.LoanApplication) error
	UpdateVerification(ctx context.Context, id string, status, resultJSON string, verifiedAt time.Time) error
	CountByStatus(ctx context.Context) (map[string]int64, error)
}

type applicationRepository struct {
	db *gorm.DB
}

// NewApplicationRepository returns a new instance of ApplicationRepository
func NewApplicationRepository(db *gorm.DB) ApplicationRepository {
	return &applicationRepository{db: db}
}

func (r *applicationRepository) Create(ctx context.Context, app *model.LoanApplication) error {
	return GetDB(ctx, r.db).Create(app).Error
}

func (r *applicationRepository) GetByID(ctx context.Context, id string) (*model.LoanApplication, error) {
	var app model.LoanApplication
	if err := GetDB(ctx, r.db).First(&app, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &app, nil
}

func (r *applicationRepository) GetByIDForUpdate(ctx context.Context, id string) (*model.LoanApplication, error) {
	var app model.LoanApplication
	if err := GetDB(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&app, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &app, nil
}

func (r *applicationRepository) ListByOwner(ctx context.Context, ownerID string) ([]model.LoanApplication, error) {
	var apps []model.LoanApplication
	if err := GetDB(ctx, r.db).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&apps).Error; err != nil {
		return nil, err
	}
	return apps, nil
}

func (r *applicationRepository) LatestByOwner(ctx context.Context, ownerID string) (*model.LoanApplication, error) {
	var app model.LoanApplication
	if err := GetDB(ctx, r.db).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		First(&app).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &app, nil
}

func (r *applicationRepository) List(ctx context.Context, filter ApplicationFilter) ([]model.LoanApplication, int64, error) {
	db := GetDB(ctx, r.db)

	query := db.Model(&model.LoanApplication{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		query = query.Where("full_name ILIKE ? OR dni ILIKE ? OR email ILIKE ?", like, like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = 20
	}
	offset := (filter.Page - 1) * filter.Limit

	var apps []model.LoanApplication
	if err := query.
		Preload("Owner").
		Preload("Decider").
		Order("created_at DESC").
		Offset(offset).
		Limit(filter.Limit).
		Find(&apps).Error; err != nil {
		return nil, 0, err
	}

	return apps, total, nil
}

func (r *applicationRepository) Save(ctx context.Context, app *model.LoanApplication) error {
	return GetDB(ctx, r.db).Save(app).Error
}

// UpdateVerification writes only the advisory annotation columns as one
// atomic update keyed by id — it never touches the workflow status.
func (r *applicationRepository) UpdateVerification(ctx context.Context, id string, status, resultJSON string, verifiedAt time.Time) error {
	return GetDB(ctx, r.db).Model(&model.LoanApplication{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"document_verification_status": status,
			"document_verification_result": resultJSON,
			"document_verified_at":         verifiedAt,
		}).Error
}

func (r *applicationRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	type row struct {
		Status string
		Count  int64
	}
	var rows []row
	if err := GetDB(ctx, r.db).Model(&model.LoanApplication{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}
