package services

import (
	"context"

	"egharbari/api/internal/db"
	"egharbari/api/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// DashboardStats are the admin overview totals.
type DashboardStats struct {
	Properties PropertyStats `json:"properties"`
	Inquiries  InquiryStats  `json:"inquiries"`
	Users      UserStats     `json:"users"`
	Blogs      BlogStats     `json:"blogs"`
}

type PropertyStats struct {
	Total    int64                         `json:"total"`
	Active   int64                         `json:"active"`
	Featured int64                         `json:"featured"`
	ByType   map[models.PropertyType]int64 `json:"byType"`
}

type InquiryStats struct {
	Total    int64                          `json:"total"`
	Unread   int64                          `json:"unread"`
	ByStatus map[models.InquiryStatus]int64 `json:"byStatus"`
}

type UserStats struct {
	Total  int64 `json:"total"`
	Admins int64 `json:"admins"`
}

type BlogStats struct {
	Total     int64 `json:"total"`
	Published int64 `json:"published"`
}

type IDashboardService interface {
	Stats(ctx context.Context) (*DashboardStats, error)
}

type dashboardService struct {
	db        *mongo.Database
	inquiries IInquiryService
	users     IUserService
	blogs     IBlogService
}

// NewDashboardService creates a new DashboardService on top of the other services.
func NewDashboardService(database *mongo.Database, inquiries IInquiryService, users IUserService, blogs IBlogService) IDashboardService {
	return &dashboardService{db: database, inquiries: inquiries, users: users, blogs: blogs}
}

func (s *dashboardService) countProperties(ctx context.Context, filter bson.M) (int64, error) {
	n, err := s.db.Collection(db.PropertiesCollection).CountDocuments(ctx, filter)
	if err != nil {
		return 0, storeError(err, "failed to count properties")
	}
	return n, nil
}

// Stats gathers the totals shown on the admin dashboard.
func (s *dashboardService) Stats(ctx context.Context) (*DashboardStats, error) {
	stats := &DashboardStats{
		Properties: PropertyStats{ByType: make(map[models.PropertyType]int64, len(models.PropertyTypes))},
	}
	var err error

	if stats.Properties.Total, err = s.countProperties(ctx, bson.M{}); err != nil {
		return nil, err
	}
	if stats.Properties.Active, err = s.countProperties(ctx, bson.M{"isActive": true}); err != nil {
		return nil, err
	}
	if stats.Properties.Featured, err = s.countProperties(ctx, bson.M{"featured": true}); err != nil {
		return nil, err
	}
	for _, t := range models.PropertyTypes {
		if stats.Properties.ByType[t], err = s.countProperties(ctx, bson.M{"propertyType": t}); err != nil {
			return nil, err
		}
	}

	if stats.Inquiries.ByStatus, err = s.inquiries.CountByStatus(ctx); err != nil {
		return nil, err
	}
	for _, n := range stats.Inquiries.ByStatus {
		stats.Inquiries.Total += n
	}
	if stats.Inquiries.Unread, err = s.inquiries.CountUnread(ctx); err != nil {
		return nil, err
	}

	if stats.Users.Total, err = s.users.Count(ctx, ""); err != nil {
		return nil, err
	}
	if stats.Users.Admins, err = s.users.Count(ctx, models.RoleAdmin); err != nil {
		return nil, err
	}

	if stats.Blogs.Total, err = s.blogs.Count(ctx, false); err != nil {
		return nil, err
	}
	if stats.Blogs.Published, err = s.blogs.Count(ctx, true); err != nil {
		return nil, err
	}
	return stats, nil
}
