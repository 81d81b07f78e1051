package models

import "time"

// CoverImage is the hosted image shown at the top of a blog post.
type CoverImage struct {
	URL      string `bson:"url" json:"url" validate:"required,url"`
	PublicID string `bson:"publicId" json:"publicId"`
}

// Blog is an editorial post.
type Blog struct {
	Base        `bson:",inline"`
	Slug        string      `bson:"slug" json:"slug"`
	Title       string      `bson:"title" json:"title"`
	Excerpt     string      `bson:"excerpt" json:"excerpt"`
	Content     string      `bson:"content" json:"content"`
	Category    string      `bson:"category" json:"category"`
	Tags        []string    `bson:"tags" json:"tags"`
	CoverImage  *CoverImage `bson:"coverImage,omitempty" json:"coverImage,omitempty"`
	Author      string      `bson:"author" json:"author"`
	IsPublished bool        `bson:"isPublished" json:"isPublished"`
	PublishedAt *time.Time  `bson:"publishedAt,omitempty" json:"publishedAt,omitempty"`
	Views       int64       `bson:"views" json:"views"`
}
