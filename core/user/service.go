package user

import (
	"context"
	"errors"
	"net/mail"

	"github.com/google/uuid"
	"github.com/kat-co/vala"
	pkgerrors "github.com/pkg/errors"

	"github.com/trezcool/coachdiary/core"
)

var (
	// errors
	ErrNotFound      = core.NewNotFoundError("user")
	ErrEmailExists   = errors.New("a user with this email already exists")
	ErrWrongPassword = errors.New("current password is incorrect")

	errInvalidValue = "invalid value"
)

type (
	Repository interface {
		CheckEmailUniqueness(ctx context.Context, email string, excludedUsers []User, exec ...core.DBExecutor) error
		CreateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		GetUser(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (User, error)
		UpdateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
	}

	ServiceInterface interface {
		CheckEmailUniqueness(email string, excludedUsers ...User) error
		Create(nu NewUser) (User, error)
		GetByID(id string) (User, error)
		GetByEmail(email string) (User, error)
		SetLastLogin(usr User) (User, error)
		Update(usr User, uu UpdateUser) (User, error)
		ChangePassword(usr User, cp ChangePassword) (User, error)
		SetPassword(usr User, pwd string) (User, error)
		RequestPasswordReset(email string) error
		ResetPassword(rp ResetUserPassword) error
	}

	Service struct {
		repo    Repository
		mailSvc core.EmailService
		tokens  *TokenGenerator
	}
)

var _ ServiceInterface = (*Service)(nil)

func NewService(conf *core.Config, repo Repository, mailSvc core.EmailService) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(conf, "conf"),
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(mailSvc, "mailSvc"),
	).CheckAndPanic()
	return &Service{repo: repo, mailSvc: mailSvc, tokens: NewTokenGenerator(conf)}
}

func (svc *Service) CheckEmailUniqueness(email string, excludedUsers ...User) error {
	if err := svc.repo.CheckEmailUniqueness(context.Background(), email, excludedUsers); err != nil {
		if pkgerrors.Cause(err) == ErrEmailExists {
			return core.NewValidationError(ErrEmailExists, core.FieldError{Field: "email", Error: ErrEmailExists.Error()})
		}
		return err
	}
	return nil
}

func (svc *Service) Create(nu NewUser) (User, error) {
	now := core.NowFunc().UTC()
	usr := User{
		Name:      nu.Name,
		Email:     nu.Email,
		IsActive:  true,
		IsStaff:   nu.IsStaff,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, pkgerrors.Wrap(err, "setting password")
	}
	return svc.repo.CreateUser(context.Background(), usr)
}

func (svc *Service) GetByID(id string) (User, error) {
	return svc.repo.GetUser(context.Background(), GetFilter{ID: id})
}

func (svc *Service) GetByEmail(email string) (User, error) {
	return svc.repo.GetUser(context.Background(), GetFilter{Email: core.CleanString(email, true /* lower */)})
}

func (svc *Service) SetLastLogin(usr User) (User, error) {
	usr.LastLogin = core.NowFunc().UTC()
	return svc.repo.UpdateUser(context.Background(), usr)
}

func (svc *Service) Update(usr User, uu UpdateUser) (User, error) {
	usr.Name = uu.Name
	usr.Email = uu.Email
	usr.UpdatedAt = core.NowFunc().UTC()
	return svc.repo.UpdateUser(context.Background(), usr)
}

func (svc *Service) ChangePassword(usr User, cp ChangePassword) (User, error) {
	return svc.SetPassword(usr, cp.Password)
}

func (svc *Service) SetPassword(usr User, pwd string) (User, error) {
	if err := usr.SetPassword(pwd); err != nil {
		return User{}, pkgerrors.Wrap(err, "setting password")
	}
	usr.UpdatedAt = core.NowFunc().UTC()
	return svc.repo.UpdateUser(context.Background(), usr)
}

// RequestPasswordReset emails a password reset link to the active User with the given email.
func (svc *Service) RequestPasswordReset(email string) error {
	usr, err := svc.GetByEmail(email)
	if err != nil {
		return err
	}
	if !usr.IsActive {
		return ErrNotFound
	}

	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "Password reset",
		TemplateName: "password_reset",
		TemplateData: map[string]string{
			"Name":  usr.Name,
			"UID":   EncodeUID(usr),
			"Token": svc.tokens.MakeToken(usr),
		},
	})
	return nil
}

// ResetPassword sets the password of the User identified by rp.UID once rp.Token is verified.
func (svc *Service) ResetPassword(rp ResetUserPassword) error {
	uidErr := core.NewValidationError(nil, core.FieldError{Field: "uid", Error: errInvalidValue})

	id, err := decodeUID(rp.UID)
	if err != nil {
		return uidErr
	}
	if _, err = uuid.Parse(id); err != nil {
		return uidErr
	}
	usr, err := svc.GetByID(id)
	if err != nil {
		if core.IsNotFound(err) {
			return uidErr
		}
		return pkgerrors.Wrap(err, "getting user")
	}
	if !usr.IsActive {
		return uidErr
	}

	if err = svc.tokens.VerifyToken(usr, rp.Token); err != nil {
		return core.NewValidationError(err, core.FieldError{Field: "token", Error: errInvalidValue})
	}
	_, err = svc.SetPassword(usr, rp.Password)
	return err
}
