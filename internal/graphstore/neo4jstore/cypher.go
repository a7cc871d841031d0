package neo4jstore

import (
	"fmt"
	"strings"

	"github.com/lherron/graphsync/internal/domain"
)

// Labels and relationship types cannot be query parameters, so every value
// spliced into Cypher is checked against the closed vocabulary first.

func checkLabel(l domain.Label) (domain.Label, error) {
	label, err := domain.ParseLabel(string(l))
	if err != nil {
		return "", err
	}
	if err := domain.ValidateIdentifier(string(label)); err != nil {
		return "", err
	}
	return label, nil
}

func checkRel(rt domain.RelationshipType) (domain.RelationshipType, error) {
	if err := domain.ValidateRelationship(rt); err != nil {
		return "", err
	}
	if err := domain.ValidateIdentifier(string(rt)); err != nil {
		return "", err
	}
	return rt, nil
}

// idLabel is carried by every node the store writes. Lookups by id match on
// it so they use idIndexCypher instead of scanning every node.
const idLabel = "Entity"

func constraintCypher(l domain.Label) (string, error) {
	label, err := checkLabel(l)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("CREATE CONSTRAINT %s_id_unique IF NOT EXISTS FOR (n:%s) REQUIRE n.id IS UNIQUE",
		strings.ToLower(string(label)), label), nil
}

func createNodeCypher(l domain.Label) (string, error) {
	label, err := checkLabel(l)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("CREATE (n:%s:%s) SET n = $props, n.id = $id", label, idLabel), nil
}

const (
	idIndexCypher    = `CREATE INDEX entity_id IF NOT EXISTS FOR (n:Entity) ON (n.id)`
	unlabeledCypher  = `MATCH (n) WHERE n.id IS NOT NULL AND NOT n:Entity RETURN n.id AS id LIMIT 1`
	labelNodesCypher = `MATCH (n) WHERE n.id IS NOT NULL AND NOT n:Entity SET n:Entity RETURN count(n) AS c`

	nodeExistsCypher = `MATCH (n:Entity {id: $id}) RETURN count(n) AS c`
	getNodeCypher    = `MATCH (n:Entity {id: $id}) RETURN labels(n) AS labels, properties(n) AS props LIMIT 1`
	setNodeCypher    = `MATCH (n:Entity {id: $id}) SET n = $props, n.id = $id`
	renameNodeCypher = `MATCH (n:Entity {id: $from}) SET n = $props, n.id = $to`
	deleteNodeCypher = `MATCH (n:Entity {id: $id}) WITH n, n.id AS id DETACH DELETE n RETURN count(id) AS deleted`

	edgesOutCypher = `MATCH (o:Entity {id: $id})-[r]->(x) RETURN type(r) AS type, x.id AS other, properties(r) AS props`
	edgesInCypher  = `MATCH (x)-[r]->(o:Entity {id: $id}) WHERE x <> o RETURN type(r) AS type, x.id AS other, properties(r) AS props`

	scanNodesCypher    = `MATCH (n) WHERE n.id IS NOT NULL RETURN n.id AS id, labels(n) AS labels, properties(n) AS props ORDER BY id`
	scanEdgesCypher    = `MATCH (a)-[r]->(b) WHERE a.id IS NOT NULL AND b.id IS NOT NULL RETURN a.id AS source, type(r) AS type, b.id AS target, properties(r) AS props ORDER BY source, type, target`
	scanEdgesInCypher  = `MATCH (a)-[r]->(b) WHERE a.id IN $ids AND b.id IN $ids RETURN a.id AS source, type(r) AS type, b.id AS target, properties(r) AS props ORDER BY source, type, target`
	countNodesCypher   = `MATCH (n) RETURN count(n) AS c`
	countEdgesCypher   = `MATCH ()-[r]->() RETURN count(r) AS c`
	countByLabelCypher = `MATCH (n) UNWIND labels(n) AS key WITH key WHERE key <> 'Entity' RETURN key, count(*) AS c`
	countByTypeCypher  = `MATCH ()-[r]->() RETURN type(r) AS key, count(*) AS c`
	orphanNodesCypher  = `MATCH (n) WHERE n.id IS NOT NULL AND NOT EXISTS { (n)--() } RETURN n.id AS id, labels(n) AS labels, properties(n) AS props ORDER BY id`
)

// withoutIDLabel rewrites a lookup to match nodes by id alone.
func withoutIDLabel(cypher string) string {
	return strings.ReplaceAll(cypher, ":"+idLabel+" {", " {")
}

func getEdgeCypher(rt domain.RelationshipType) (string, error) {
	rel, err := checkRel(rt)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("MATCH (a:Entity {id: $source})-[r:%s]->(b:Entity {id: $target}) RETURN properties(r) AS props LIMIT 1", rel), nil
}

// upsertEdgeCypher returns no rows when either endpoint is missing.
func upsertEdgeCypher(rt domain.RelationshipType) (string, error) {
	rel, err := checkRel(rt)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`MATCH (a:Entity {id: $source})
MATCH (b:Entity {id: $target})
OPTIONAL MATCH (a)-[existing:%[1]s]->(b)
WITH a, b, count(existing) > 0 AS existed
MERGE (a)-[r:%[1]s]->(b)
SET r = $props
RETURN existed`, rel), nil
}

func scanNodesLimitCypher(limit int) string {
	if limit <= 0 {
		return scanNodesCypher
	}
	return scanNodesCypher + " LIMIT $limit"
}
