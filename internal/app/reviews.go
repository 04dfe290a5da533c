package app

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/stefantrajanov/recenzija-mk/internal/domain"
)

// ReviewInput is the public review submission body.
type ReviewInput struct {
	AuthorName string `json:"author_name" validate:"required,max=100"`
	Rating     *int   `json:"rating" validate:"required,min=1,max=5"`
	Comment    string `json:"comment" validate:"required,max=2000"`
}

// ReviewService owns every review write. Observers run in registration order
// after the write has been committed.
type ReviewService struct {
	repo      domain.DirectoryRepository
	observers []domain.ReviewObserver
	validate  *validator.Validate
}

func NewReviewService(r domain.DirectoryRepository, observers ...domain.ReviewObserver) *ReviewService {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &ReviewService{repo: r, observers: observers, validate: v}
}

// Submit validates in, stores the review and runs the observers. Validation
// happens before any storage access; an unknown business is ErrNotFound.
func (s *ReviewService) Submit(ctx context.Context, businessID int64, in ReviewInput) (domain.Review, error) {
	in.AuthorName = strings.TrimSpace(in.AuthorName)
	in.Comment = strings.TrimSpace(in.Comment)
	if err := s.check(in); err != nil {
		return domain.Review{}, err
	}

	if _, err := s.repo.GetBusiness(ctx, businessID); err != nil {
		return domain.Review{}, err
	}

	rv, err := s.repo.CreateReview(ctx, domain.Review{
		BusinessID: businessID,
		AuthorName: in.AuthorName,
		Rating:     *in.Rating,
		Comment:    in.Comment,
	})
	if err != nil {
		return domain.Review{}, err
	}

	var errs []error
	for _, o := range s.observers {
		if err := o.ReviewCreated(ctx, rv); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return domain.Review{}, fmt.Errorf("review %d stored, post-commit hooks failed: %w", rv.ID, err)
	}
	return rv, nil
}

// Delete removes a review of businessID and runs the observers.
func (s *ReviewService) Delete(ctx context.Context, businessID, reviewID int64) error {
	rv, err := s.repo.DeleteReview(ctx, businessID, reviewID)
	if err != nil {
		return err
	}

	var errs []error
	for _, o := range s.observers {
		if err := o.ReviewDeleted(ctx, rv); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("review %d deleted, post-commit hooks failed: %w", rv.ID, err)
	}
	return nil
}

func (s *ReviewService) check(in ReviewInput) error {
	err := s.validate.Struct(in)
	if err == nil {
		return nil
	}
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return err
	}
	verr := &ValidationError{}
	for _, fe := range ves {
		verr.add(fe.Field(), fieldMessage(fe))
	}
	return verr
}

func fieldMessage(fe validator.FieldError) string {
	unit := ""
	if fe.Kind() == reflect.String {
		unit = " characters"
	}
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return "must be at most " + fe.Param() + unit
	case "min":
		return "must be at least " + fe.Param() + unit
	default:
		return "is invalid"
	}
}
