package services

import (
	"errors"
	"fmt"
	"time"

	"ledger-service/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ChainMember is one hierarchy ancestor with its resolved commission rule for
// a single distribution run. Derived, never persisted.
type ChainMember struct {
	UserId          int
	Role            models.Role
	Level           int
	CommissionType  string
	CommissionValue float64
	SettingId       *int
}

// CommissionService resolves the commission chain for a transaction: it walks
// the ownership hierarchy and binds a rule to every ancestor with precedence
// user-specific override, then role default, then zero.
type CommissionService struct {
	DB       *gorm.DB
	Identity HierarchyProvider
	Log      *zap.Logger
}

func NewCommissionService(db *gorm.DB, identity HierarchyProvider, log *zap.Logger) *CommissionService {
	return &CommissionService{DB: db, Identity: identity, Log: log}
}

// ResolveChain builds the ordered chain (top first) for userId and service.
// A mis-ordered hierarchy is logged and tolerated; duplicate members or
// out-of-range rule values fail the whole resolution, because a partially
// trustworthy chain must never reach the distributor.
func (s *CommissionService) ResolveChain(userId, serviceId int, channel *string) ([]ChainMember, error) {
	path, err := s.Identity.GetOwnershipPath(userId)
	if err != nil {
		return nil, fmt.Errorf("ownership path for user %d: %w", userId, err)
	}
	if len(path) == 0 {
		return nil, fmt.Errorf("%w: empty ownership path for user %d", ErrChainValidation, userId)
	}

	for i := 1; i < len(path); i++ {
		if path[i].Level <= path[i-1].Level {
			s.Log.Warn("ownership path levels out of order",
				zap.Int("user_id", userId),
				zap.Int("position", i),
				zap.Int("level", path[i].Level),
				zap.Int("prev_level", path[i-1].Level))
			break
		}
	}

	now := time.Now()
	seen := make(map[int]bool, len(path))
	chain := make([]ChainMember, 0, len(path))
	for _, node := range path {
		if seen[node.UserId] {
			return nil, fmt.Errorf("%w: duplicate user %d in chain", ErrChainValidation, node.UserId)
		}
		seen[node.UserId] = true

		member := ChainMember{
			UserId:         node.UserId,
			Role:           node.Role,
			Level:          node.Level,
			CommissionType: models.CommissionTypeFlat,
		}
		setting, err := s.resolveRule(node, serviceId, channel, now)
		if err != nil {
			return nil, err
		}
		if setting != nil {
			member.CommissionType = setting.CommissionType
			member.CommissionValue = setting.CommissionValue
			member.SettingId = &setting.ID
		}
		chain = append(chain, member)
	}

	for _, m := range chain {
		switch m.CommissionType {
		case models.CommissionTypePercentage:
			if m.CommissionValue < 0 || m.CommissionValue > 100 {
				return nil, fmt.Errorf("%w: percentage %.4f out of range for user %d", ErrChainValidation, m.CommissionValue, m.UserId)
			}
		case models.CommissionTypeFlat:
			if m.CommissionValue < 0 {
				return nil, fmt.Errorf("%w: negative flat value for user %d", ErrChainValidation, m.UserId)
			}
		default:
			return nil, fmt.Errorf("%w: unknown commission type %q for user %d", ErrChainValidation, m.CommissionType, m.UserId)
		}
	}
	return chain, nil
}

// resolveRule finds the winning setting for one member: USER scope before
// ROLE scope; within a scope, exact channel before the channel-agnostic
// setting; within that, the latest effective_from whose window covers now.
func (s *CommissionService) resolveRule(node HierarchyMember, serviceId int, channel *string, now time.Time) (*models.CommissionSetting, error) {
	lookups := []struct {
		scope  string
		target int
	}{
		{models.ScopeUser, node.UserId},
		{models.ScopeRole, node.Role.Level()},
	}
	for _, l := range lookups {
		setting, err := s.lookupSetting(l.scope, l.target, serviceId, channel, now)
		if err != nil {
			return nil, err
		}
		if setting != nil {
			return setting, nil
		}
	}
	return nil, nil
}

func (s *CommissionService) lookupSetting(scope string, target, serviceId int, channel *string, now time.Time) (*models.CommissionSetting, error) {
	channels := []*string{nil}
	if channel != nil {
		channels = []*string{channel, nil}
	}
	for _, ch := range channels {
		query := s.DB.Where("scope = ? AND service_id = ? AND is_active = ?", scope, serviceId, true).
			Where("effective_from <= ?", now).
			Where("effective_to IS NULL OR effective_to >= ?", now)
		if scope == models.ScopeUser {
			query = query.Where("target_user_id = ?", target)
		} else {
			query = query.Where("role_id = ?", target)
		}
		if ch != nil {
			query = query.Where("channel = ?", *ch)
		} else {
			query = query.Where("channel IS NULL")
		}

		var setting models.CommissionSetting
		err := query.Order("effective_from DESC").First(&setting).Error
		if err == nil {
			return &setting, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	return nil, nil
}

type SaveSettingDTO struct {
	Scope           string
	RoleId          *int
	TargetUserId    *int
	ServiceId       int
	Channel         *string
	CommissionType  string
	CommissionValue float64
	EffectiveFrom   time.Time
	EffectiveTo     *time.Time
}

// SaveSetting validates and stores one commission rule.
func (s *CommissionService) SaveSetting(data SaveSettingDTO) (*models.CommissionSetting, error) {
	switch data.Scope {
	case models.ScopeUser:
		if data.TargetUserId == nil || data.RoleId != nil {
			return nil, fmt.Errorf("%w: USER scope requires target_user_id only", ErrChainValidation)
		}
	case models.ScopeRole:
		if data.RoleId == nil || data.TargetUserId != nil {
			return nil, fmt.Errorf("%w: ROLE scope requires role_id only", ErrChainValidation)
		}
		if !models.Role(*data.RoleId).Valid() {
			return nil, fmt.Errorf("%w: unknown role ordinal %d", ErrChainValidation, *data.RoleId)
		}
	default:
		return nil, fmt.Errorf("%w: unknown scope %q", ErrChainValidation, data.Scope)
	}
	switch data.CommissionType {
	case models.CommissionTypePercentage:
		if data.CommissionValue < 0 || data.CommissionValue > 100 {
			return nil, fmt.Errorf("%w: percentage out of range", ErrChainValidation)
		}
	case models.CommissionTypeFlat:
		if data.CommissionValue < 0 {
			return nil, fmt.Errorf("%w: negative flat value", ErrChainValidation)
		}
	default:
		return nil, fmt.Errorf("%w: unknown commission type %q", ErrChainValidation, data.CommissionType)
	}

	setting := models.CommissionSetting{
		Scope:           data.Scope,
		RoleId:          data.RoleId,
		TargetUserId:    data.TargetUserId,
		ServiceId:       data.ServiceId,
		Channel:         data.Channel,
		CommissionType:  data.CommissionType,
		CommissionValue: data.CommissionValue,
		EffectiveFrom:   data.EffectiveFrom,
		EffectiveTo:     data.EffectiveTo,
		IsActive:        true,
	}
	if err := s.DB.Create(&setting).Error; err != nil {
		return nil, err
	}
	return &setting, nil
}

type EarningsQueryDTO struct {
	UserId int
	Page   int
	Limit  int
	From   string
	To     string
}

// ListEarnings returns a user's commission earnings, newest first, with the
// signed total over the filtered window.
func (s *CommissionService) ListEarnings(data EarningsQueryDTO) ([]models.CommissionEarning, int64, int64, error) {
	limit := data.Limit
	if limit <= 0 {
		limit = 50
	}
	page := data.Page
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * limit

	filtered := func() *gorm.DB {
		q := s.DB.Model(&models.CommissionEarning{}).Where("user_id = ?", data.UserId)
		if data.From != "" && data.To != "" {
			q = q.Where("created_at BETWEEN ? AND ?", data.From, data.To)
		}
		return q
	}

	var total int64
	if err := filtered().Count(&total).Error; err != nil {
		return nil, 0, 0, err
	}

	var sum int64
	if err := filtered().Select("COALESCE(SUM(amount), 0)").Scan(&sum).Error; err != nil {
		return nil, 0, 0, err
	}

	var earnings []models.CommissionEarning
	if err := filtered().Order("id DESC").Limit(limit).Offset(offset).Find(&earnings).Error; err != nil {
		return nil, 0, 0, err
	}
	return earnings, total, sum, nil
}
