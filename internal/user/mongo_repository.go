package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const usersCollection = "users"

// MongoRepository stores users as documents with embedded properties.
// Property mutations use single-document update operators, which MongoDB
// applies atomically.
type MongoRepository struct {
	client *mongo.Client
	coll   *mongo.Collection
}

type mongoProperty struct {
	ID          primitive.ObjectID `bson:"_id"`
	Address     string             `bson:"address"`
	Description string             `bson:"description,omitempty"`
	Rent        float64            `bson:"rent"`
	Gender      string             `bson:"gender,omitempty"`
	Furnishing  string             `bson:"furnishing,omitempty"`
	Restriction string             `bson:"restriction,omitempty"`
	Images      []string           `bson:"images"`
	Status      string             `bson:"status"`
	WiFi        bool               `bson:"wifi"`
	AC          bool               `bson:"ac"`
	WaterSupply bool               `bson:"waterSupply"`
	PowerBackup bool               `bson:"powerBackup"`
	Security    bool               `bson:"security"`
	CreatedAt   time.Time          `bson:"createdAt"`
	UpdatedAt   time.Time          `bson:"updatedAt"`
}

type mongoUser struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	UID         string             `bson:"uid,omitempty"`
	Name        string             `bson:"name,omitempty"`
	Email       string             `bson:"email,omitempty"`
	PhoneNumber string             `bson:"phoneNumber,omitempty"`
	Password    string             `bson:"password,omitempty"`
	Role        string             `bson:"role"`
	IsActive    bool               `bson:"isActive"`
	OTP         string             `bson:"otp,omitempty"`
	OTPExpires  *time.Time         `bson:"otpExpires,omitempty"`
	Properties  []mongoProperty    `bson:"properties"`
	CreatedAt   time.Time          `bson:"createdAt"`
	UpdatedAt   time.Time          `bson:"updatedAt"`
}

// NewMongoRepository uses the users collection of db and makes sure its
// unique indexes exist
func NewMongoRepository(ctx context.Context, client *mongo.Client, dbName string) (*MongoRepository, error) {
	coll := client.Database(dbName).Collection(usersCollection)

	// phone_number was the non-unique index on the same key before mobile
	// became unique; the two cannot coexist.
	if _, err := coll.Indexes().DropOne(ctx, "phone_number"); err != nil && !isMissingIndex(err) {
		return nil, fmt.Errorf("failed to drop index phone_number: %w", err)
	}

	_, err := coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true).SetName("email_unique"),
		},
		{
			Keys:    bson.D{{Key: "uid", Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true).SetName("uid_unique"),
		},
		{
			Keys:    bson.D{{Key: "phoneNumber", Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true).SetName("mobile_unique"),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create user indexes: %w", err)
	}

	return &MongoRepository{client: client, coll: coll}, nil
}

func (r *MongoRepository) Create(ctx context.Context, u *User) (*User, error) {
	if err := validateNew(u); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	doc := mongoUser{
		ID:          primitive.NewObjectID(),
		UID:         u.ExternalSubjectID,
		Name:        u.Name,
		Email:       u.Email,
		PhoneNumber: u.Mobile,
		Password:    u.PasswordHash,
		Role:        string(u.Role),
		IsActive:    u.IsActive,
		Properties:  []mongoProperty{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		if dupErr := duplicateIndexError(err); dupErr != nil {
			return nil, dupErr
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return doc.toModel(), nil
}

func (r *MongoRepository) FindBy(ctx context.Context, s Subject) (*User, error) {
	filter, err := subjectFilter(s)
	if err != nil {
		return nil, err
	}

	var doc mongoUser
	if err := r.coll.FindOne(ctx, filter, options.FindOne().SetSort(bson.D{{Key: "_id", Value: 1}})).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user by %s: %w", s.Kind, err)
	}

	return doc.toModel(), nil
}

func (r *MongoRepository) List(ctx context.Context) ([]*User, error) {
	cursor, err := r.coll.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	var docs []mongoUser
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode users: %w", err)
	}

	users := make([]*User, 0, len(docs))
	for i := range docs {
		users = append(users, docs[i].toModel())
	}
	return users, nil
}

func (r *MongoRepository) Update(ctx context.Context, u *User) (*User, error) {
	oid, err := primitive.ObjectIDFromHex(u.ID)
	if err != nil {
		return nil, ErrNotFound
	}

	set := bson.M{
		"isActive":  u.IsActive,
		"updatedAt": time.Now().UTC(),
	}
	unset := bson.M{}

	optional := []struct {
		field string
		value string
	}{
		{"name", u.Name},
		{"email", u.Email},
		{"phoneNumber", u.Mobile},
		{"password", u.PasswordHash},
		{"otp", u.OTPHash},
	}
	for _, f := range optional {
		if f.value == "" {
			unset[f.field] = ""
		} else {
			set[f.field] = f.value
		}
	}
	if u.OTPExpiresAt != nil {
		set["otpExpires"] = u.OTPExpiresAt.UTC()
	} else {
		unset["otpExpires"] = ""
	}

	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}

	var doc mongoUser
	err = r.coll.FindOneAndUpdate(ctx, bson.M{"_id": oid}, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		if dupErr := duplicateIndexError(err); dupErr != nil {
			return nil, dupErr
		}
		return nil, fmt.Errorf("failed to update user: %w", err)
	}

	return doc.toModel(), nil
}

func (r *MongoRepository) AddProperty(ctx context.Context, owner Subject, p Property) (*Property, error) {
	filter, err := subjectFilter(owner)
	if err != nil {
		return nil, err
	}

	oid := primitive.NewObjectID()
	now := time.Now().UTC()
	created := newProperty(p, oid.Hex(), now)

	result, err := r.coll.UpdateOne(ctx, filter, bson.M{
		"$push": bson.M{"properties": toMongoProperty(created, oid)},
		"$set":  bson.M{"updatedAt": now},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add property: %w", err)
	}
	if result.MatchedCount == 0 {
		return nil, ErrNotFound
	}

	return &created, nil
}

func (r *MongoRepository) UpdateProperty(ctx context.Context, owner Subject, propertyID string, patch PropertyPatch) (*Property, error) {
	filter, err := subjectFilter(owner)
	if err != nil {
		return nil, err
	}
	oid, err := primitive.ObjectIDFromHex(propertyID)
	if err != nil {
		return nil, ErrPropertyNotFound
	}
	filter["properties._id"] = oid

	now := time.Now().UTC()
	set := bson.M{
		"updatedAt":                 now,
		"properties.$[p].updatedAt": now,
	}
	if patch.Rent != nil {
		set["properties.$[p].rent"] = *patch.Rent
	}
	if patch.Status != nil {
		set["properties.$[p].status"] = string(*patch.Status)
	}

	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetArrayFilters(options.ArrayFilters{Filters: []interface{}{bson.M{"p._id": oid}}})

	var doc mongoUser
	if err := r.coll.FindOneAndUpdate(ctx, filter, bson.M{"$set": set}, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrPropertyNotFound
		}
		return nil, fmt.Errorf("failed to update property: %w", err)
	}

	for _, mp := range doc.Properties {
		if mp.ID == oid {
			updated := mp.toModel()
			return &updated, nil
		}
	}
	return nil, ErrPropertyNotFound
}

func (r *MongoRepository) DeleteProperty(ctx context.Context, owner Subject, propertyID string) error {
	filter, err := subjectFilter(owner)
	if err != nil {
		return err
	}
	oid, err := primitive.ObjectIDFromHex(propertyID)
	if err != nil {
		return ErrPropertyNotFound
	}
	filter["properties._id"] = oid

	result, err := r.coll.UpdateOne(ctx, filter, bson.M{
		"$pull": bson.M{"properties": bson.M{"_id": oid}},
		"$set":  bson.M{"updatedAt": time.Now().UTC()},
	})
	if err != nil {
		return fmt.Errorf("failed to delete property: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrPropertyNotFound
	}

	return nil
}

func (r *MongoRepository) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return r.client.Disconnect(ctx)
}

func subjectFilter(s Subject) (bson.M, error) {
	if s.Value == "" {
		return nil, ErrNotFound
	}

	switch s.Kind {
	case ByID:
		oid, err := primitive.ObjectIDFromHex(s.Value)
		if err != nil {
			return nil, ErrNotFound
		}
		return bson.M{"_id": oid}, nil
	case ByExternal:
		return bson.M{"uid": s.Value}, nil
	case ByEmail:
		return bson.M{"email": s.Value}, nil
	case ByMobile:
		return bson.M{"phoneNumber": s.Value}, nil
	default:
		return nil, fmt.Errorf("unknown subject kind %q", s.Kind)
	}
}

// duplicateIndexError maps an E11000 error to the domain error of the
// index that rejected it
func duplicateIndexError(err error) error {
	switch {
	case !mongo.IsDuplicateKeyError(err):
		return nil
	case isDuplicateOn(err, "email_unique"):
		return ErrDuplicateEmail
	case isDuplicateOn(err, "mobile_unique"):
		return ErrDuplicateMobile
	default:
		return ErrDuplicateSubject
	}
}

// isMissingIndex matches IndexNotFound and NamespaceNotFound
func isMissingIndex(err error) bool {
	var cmdErr mongo.CommandError
	return errors.As(err, &cmdErr) && (cmdErr.Code == 27 || cmdErr.Code == 26)
}

// isDuplicateOn reports whether err is a duplicate key error raised by the
// named index. Inserts surface a WriteException, findAndModify a CommandError.
func isDuplicateOn(err error, index string) bool {
	return mongo.IsDuplicateKeyError(err) && strings.Contains(err.Error(), "index: "+index)
}

func (d *mongoUser) toModel() *User {
	u := &User{
		ID:                d.ID.Hex(),
		ExternalSubjectID: d.UID,
		Name:              d.Name,
		Email:             d.Email,
		Mobile:            d.PhoneNumber,
		PasswordHash:      d.Password,
		Role:              Role(d.Role),
		IsActive:          d.IsActive,
		OTPHash:           d.OTP,
		OTPExpiresAt:      d.OTPExpires,
		Properties:        make([]Property, 0, len(d.Properties)),
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}
	for _, p := range d.Properties {
		u.Properties = append(u.Properties, p.toModel())
	}
	return u
}

func (p mongoProperty) toModel() Property {
	images := p.Images
	if images == nil {
		images = []string{}
	}
	return Property{
		ID:          p.ID.Hex(),
		Address:     p.Address,
		Description: p.Description,
		Rent:        p.Rent,
		Gender:      p.Gender,
		Furnishing:  p.Furnishing,
		Restriction: p.Restriction,
		Images:      images,
		Status:      PropertyStatus(p.Status),
		WiFi:        p.WiFi,
		AC:          p.AC,
		WaterSupply: p.WaterSupply,
		PowerBackup: p.PowerBackup,
		Security:    p.Security,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func toMongoProperty(p Property, oid primitive.ObjectID) mongoProperty {
	return mongoProperty{
		ID:          oid,
		Address:     p.Address,
		Description: p.Description,
		Rent:        p.Rent,
		Gender:      p.Gender,
		Furnishing:  p.Furnishing,
		Restriction: p.Restriction,
		Images:      p.Images,
		Status:      string(p.Status),
		WiFi:        p.WiFi,
		AC:          p.AC,
		WaterSupply: p.WaterSupply,
		PowerBackup: p.PowerBackup,
		Security:    p.Security,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}
