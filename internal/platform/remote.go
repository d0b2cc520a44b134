package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"github.com/rflorenc/intersight-workbench/internal/logging"
	"github.com/rflorenc/intersight-workbench/internal/models"
)

// Intersight exposes the lookups and create calls the synchronizer needs.
type Intersight struct {
	client *Client
}

// NewIntersight wraps a client.
func NewIntersight(client *Client) *Intersight {
	return &Intersight{client: client}
}

// Inventory loads the complete remote inventory.
func (r *Intersight) Inventory(ctx context.Context) (*Inventory, error) {
	return LoadInventory(ctx, r.client)
}

// Find returns the remote object named by ref within the organization, or
// nil if it does not exist. Organizations and servers are not scoped.
func (r *Intersight) Find(ctx context.Context, ref models.Reference, orgMoid string) (*models.RemoteObject, error) {
	var (
		res Resource
		err error
	)
	switch ref.Kind {
	case models.KindOrganization:
		res, err = r.client.FindByName(ctx, organizationsPath, ref.Name, "")
	case models.KindServer:
		return r.findServer(ctx, ref.Name)
	default:
		k, lerr := lookupKind(ref.Kind, ref.Type)
		if lerr != nil {
			return nil, lerr
		}
		res, err = r.client.FindByName(ctx, k.APIPath, ref.Name, orgMoid)
	}
	if err != nil || res == nil {
		return nil, err
	}
	ro := res.Remote(ref.Kind)
	return &ro, nil
}

// findServer looks a server up by the serial in its "Name (Serial)" label,
// or by name when the label carries no serial.
func (r *Intersight) findServer(ctx context.Context, label string) (*models.RemoteObject, error) {
	name, serial := models.ParseServerLabel(label)
	filter := "Name eq " + quote(name)
	if serial != "" {
		filter = "Serial eq " + quote(serial)
	}
	var p page
	if err := r.client.GetJSON(ctx, serversPath, url.Values{"$filter": {filter}, "$top": {"1"}}, &p); err != nil {
		return nil, err
	}
	if len(p.Results) == 0 {
		return nil, nil
	}
	var res Resource
	if err := json.Unmarshal(p.Results[0], &res); err != nil {
		return nil, fmt.Errorf("parsing server: %w", err)
	}
	srv := serverFromResource(res)
	return &models.RemoteObject{
		Kind: models.KindServer,
		Type: srv.ObjectType,
		Name: srv.Label(),
		Moid: srv.Moid,
	}, nil
}

// Candidates lists every object of an untyped kind in the organization.
// It backs name normalization for template references.
func (r *Intersight) Candidates(ctx context.Context, kind models.Kind, orgMoid string) ([]models.RemoteObject, error) {
	k, err := lookupKind(kind, "")
	if err != nil {
		return nil, err
	}
	params := url.Values{
		"$filter": {"Organization.Moid eq " + quote(orgMoid)},
		"$select": {"Name,Moid,ObjectType,Organization,ModTime"},
	}
	l, err := r.client.listing(ctx, k.APIPath, kind, params)
	if err != nil {
		return nil, err
	}
	return l.Items(), nil
}

// Create posts a new object. Rejections by the remote system, including
// server errors on the create call, become *models.CreationError;
// connectivity and authentication failures stay *models.RemoteError.
// A LAN connectivity policy gets its vNICs right after it is created.
func (r *Intersight) Create(ctx context.Context, obj models.DesiredObject, orgMoid string, deps map[models.Reference]models.RemoteObject) (*models.RemoteObject, error) {
	k, body, err := payload(obj, orgMoid, deps)
	if err != nil {
		return nil, &models.CreationError{Object: obj.Key(), Err: err}
	}
	resp, status, err := r.client.Post(ctx, k.APIPath, body)
	if err != nil {
		return nil, creationError(obj.Key(), err)
	}
	var created Resource
	if err := json.Unmarshal(resp, &created); err != nil {
		return nil, &models.CreationError{Object: obj.Key(), Status: status, Err: fmt.Errorf("parsing response: %w", err)}
	}
	ro := created.Remote(obj.Kind)
	logging.Debug(ctx, "created", zap.String(logging.FieldPath, k.APIPath), zap.String(logging.FieldMoid, ro.Moid))

	if spec, ok := obj.Attributes.(*models.PolicySpec); ok && spec.Type == models.PolicyVNIC {
		if err := r.attachVNICs(ctx, obj.Name, spec, ro.Moid, orgMoid, deps); err != nil {
			err = creationError(obj.Key(), err)
			var cerr *models.CreationError
			if errors.As(err, &cerr) {
				cerr.Message = fmt.Sprintf("policy %s created without its vNICs: %s", ro.Moid, cerr.Message)
			}
			return nil, err
		}
	}
	return &ro, nil
}

// creationError classifies a failed create call. Rejections and server
// errors fail only this object; the message is kept but a server error is
// not wrapped so it no longer reads as a connectivity failure.
func creationError(key models.Key, err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return &models.CreationError{Object: key, Status: apiErr.Status, Message: apiErr.Message, Err: err}
	}
	var rerr *models.RemoteError
	if errors.As(err, &rerr) && rerr.Status >= 500 {
		msg := rerr.Error()
		if rerr.Err != nil {
			msg = rerr.Err.Error()
		}
		return &models.CreationError{Object: key, Status: rerr.Status, Message: msg}
	}
	return err
}

// Deploy requests deployment of a server profile.
func (r *Intersight) Deploy(ctx context.Context, profile models.RemoteObject) error {
	k, err := lookupKind(models.KindProfile, "")
	if err != nil {
		return err
	}
	_, _, err = r.client.Patch(ctx, k.APIPath+"/"+profile.Moid, map[string]string{"Action": "Deploy"})
	return err
}
