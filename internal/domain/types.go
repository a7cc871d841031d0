package domain

// EntityType is the lowercase entity kind carried by fragment node records.
type EntityType string

const (
	EntityOrganization EntityType = "organization"
	EntityPerson       EntityType = "person"
	EntityProfile      EntityType = "profile"
	EntityEvent        EntityType = "event"
	EntityPost         EntityType = "post"
	EntityPage         EntityType = "page"
	EntitySite         EntityType = "site"
	EntityGroup        EntityType = "group"
	EntityChannel      EntityType = "channel"
	EntitySymbol       EntityType = "symbol"
)

// Label is a graph store node label.
type Label string

const (
	LabelOrganization Label = "Organization"
	LabelPerson       Label = "Person"
	LabelProfile      Label = "Profile"
	LabelEvent        Label = "Event"
	LabelPost         Label = "Post"
	LabelSite         Label = "Site"
	LabelGroup        Label = "Group"
	LabelChannel      Label = "Channel"
	LabelSymbol       Label = "Symbol"
)

// RelationshipType is an edge type from the closed relationship vocabulary.
type RelationshipType string

const (
	RelMemberOf          RelationshipType = "MEMBER_OF"
	RelHasProfile        RelationshipType = "HAS_PROFILE"
	RelOrganizes         RelationshipType = "ORGANIZES"
	RelPublished         RelationshipType = "PUBLISHED"
	RelAnnounces         RelationshipType = "ANNOUNCES"
	RelSpeakerAt         RelationshipType = "SPEAKER_AT"
	RelReposts           RelationshipType = "REPOSTS"
	RelSharesContentFrom RelationshipType = "SHARES_CONTENT_FROM"
	RelCollaboratesWith  RelationshipType = "COLLABORATES_WITH"
	RelMentionedIn       RelationshipType = "MENTIONED_IN"
	RelMentions          RelationshipType = "MENTIONS"
	RelWorksAt           RelationshipType = "WORKS_AT"
	RelLeads             RelationshipType = "LEADS"
	RelFounded           RelationshipType = "FOUNDED"
	RelFeaturedOn        RelationshipType = "FEATURED_ON"
	RelAffiliatedWith    RelationshipType = "AFFILIATED_WITH"
	RelParticipatesIn    RelationshipType = "PARTICIPATES_IN"
	RelPromotes          RelationshipType = "PROMOTES"
	RelLinksTo           RelationshipType = "LINKS_TO"
	RelHasWebsite        RelationshipType = "HAS_WEBSITE"
	RelShares            RelationshipType = "SHARES"
	RelAttacks           RelationshipType = "ATTACKS"
	RelRelatedTo         RelationshipType = "RELATED_TO"
)

var entityLabels = map[EntityType]Label{
	EntityOrganization: LabelOrganization,
	EntityPerson:       LabelPerson,
	EntityProfile:      LabelProfile,
	EntityEvent:        LabelEvent,
	EntityPost:         LabelPost,
	EntityPage:         LabelSite,
	EntitySite:         LabelSite,
	EntityGroup:        LabelGroup,
	EntityChannel:      LabelChannel,
	EntitySymbol:       LabelSymbol,
}

var labelOrder = []Label{
	LabelOrganization,
	LabelPerson,
	LabelProfile,
	LabelEvent,
	LabelPost,
	LabelSite,
	LabelGroup,
	LabelChannel,
	LabelSymbol,
}

var relationshipOrder = []RelationshipType{
	RelMemberOf,
	RelHasProfile,
	RelOrganizes,
	RelPublished,
	RelAnnounces,
	RelSpeakerAt,
	RelReposts,
	RelSharesContentFrom,
	RelCollaboratesWith,
	RelMentionedIn,
	RelMentions,
	RelWorksAt,
	RelLeads,
	RelFounded,
	RelFeaturedOn,
	RelAffiliatedWith,
	RelParticipatesIn,
	RelPromotes,
	RelLinksTo,
	RelHasWebsite,
	RelShares,
	RelAttacks,
	RelRelatedTo,
}

// Label returns the store label for the entity type, or "" if unknown.
func (e EntityType) Label() Label {
	return entityLabels[e]
}

// URLKeyed reports whether records of this type are identified by their url.
func (e EntityType) URLKeyed() bool {
	switch e {
	case EntityProfile, EntityPage, EntitySite, EntityPost, EntityGroup, EntityChannel:
		return true
	}
	return false
}

// NameKeyed reports whether records of this type are identified by their name.
func (e EntityType) NameKeyed() bool {
	switch e {
	case EntityOrganization, EntityPerson, EntityEvent:
		return true
	}
	return false
}

// Presence reports whether the type describes an account on some platform.
// Presence types may match each other when their platforms agree.
func (e EntityType) Presence() bool {
	switch e {
	case EntityProfile, EntityPage, EntitySite, EntityChannel:
		return true
	}
	return false
}

// EntityType returns the canonical entity type for a label.
func (l Label) EntityType() EntityType {
	switch l {
	case LabelSite:
		return EntitySite
	case "":
		return ""
	}
	for et, label := range entityLabels {
		if label == l && et != EntityPage {
			return et
		}
	}
	return ""
}

// Labels returns every store label in a stable order.
func Labels() []Label {
	out := make([]Label, len(labelOrder))
	copy(out, labelOrder)
	return out
}

// RelationshipTypes returns the relationship vocabulary in a stable order.
func RelationshipTypes() []RelationshipType {
	out := make([]RelationshipType, len(relationshipOrder))
	copy(out, relationshipOrder)
	return out
}
