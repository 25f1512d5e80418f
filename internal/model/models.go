// Package model defines the normalized records persisted by the sink.
package model

import "time"

// Job is the flattened parent record for one vacancy. Optional fields from
// the API are pointers so absence survives the round trip to Postgres.
type Job struct {
	ID         int
	Title      string
	Slug       string
	IsNew      bool
	IsFavorite bool
	IsVip      bool
	CreatedAt  *time.Time
	DeadlineAt *time.Time

	SalaryAmount *float64
	SalaryText   string
	ViewCount    int
	Phone        string
	HideCompany  bool

	CompanyID           *int
	CompanyTitle        string
	CompanySlug         string
	CompanyLogo         string
	CompanyLogoMini     string
	CompanyFirstChar    string
	CompanyHasStory     bool
	CompanySummary      string
	CompanyText         string
	CompanyAddress      string
	CompanyCover        string
	CompanyVacancyCount int
	CompanyLat          *float64
	CompanyLng          *float64

	CategoryID        *int
	CategoryTitle     string
	CategoryImageMini string

	TextContent      string
	TextContentClean string
	RequestType      string
	DirectApply      bool
	ApplyLink        string
	HasCompanyInfo   bool
}

// Phone is one company phone row.
type Phone struct {
	JobID int
	Phone string
}

// Website is one company website row.
type Website struct {
	JobID int
	URL   string
	Title string
}

// Email is one company email row.
type Email struct {
	JobID int
	Email string
}

// Industry is one company industry row.
type Industry struct {
	JobID     int
	ID        *int
	Title     string
	ImageMini string
}

// GalleryImage is one company gallery row.
type GalleryImage struct {
	JobID int
	URL   string
}

// File is one job attachment row.
type File struct {
	JobID int
	URL   string
	Name  string
	Type  string
}

// Children groups the one-to-many collections of a Job. Upserts replace each
// collection wholesale.
type Children struct {
	Phones     []Phone
	Websites   []Website
	Emails     []Email
	Industries []Industry
	Gallery    []GalleryImage
	Files      []File
}

// Record bundles a normalized parent with its child collections.
type Record struct {
	Job      Job
	Children Children
}
