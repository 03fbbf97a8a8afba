package outbox

const conflictDetectedSchema = `{
  "type": "object",
  "title": "ConflictDetected",
  "properties": {
    "conflict_id": {"type": "string"},
    "tenant_id": {"type": "string"},
    "athlete_id": {"type": "string"},
    "activity_date": {"type": "string", "format": "date-time"},
    "conflict_type": {"type": "string", "enum": ["DUPLICATE", "OVERLAP"]},
    "status": {"type": "string"},
    "platforms": {"type": "array", "items": {"type": "string"}},
    "detected_at": {"type": "string", "format": "date-time"}
  },
  "required": ["conflict_id", "tenant_id", "athlete_id", "activity_date", "conflict_type", "status", "platforms", "detected_at"],
  "additionalProperties": false
}`

const conflictResolvedSchema = `{
  "type": "object",
  "title": "ConflictResolved",
  "properties": {
    "conflict_id": {"type": "string"},
    "tenant_id": {"type": "string"},
    "athlete_id": {"type": "string"},
    "primary_platform": {"type": "string"},
    "retained_sources": {"type": "array", "items": {"type": "string"}},
    "resolved_by": {"type": "string"},
    "automatic": {"type": "boolean"},
    "resolved_at": {"type": "string", "format": "date-time"}
  },
  "required": ["conflict_id", "tenant_id", "athlete_id", "primary_platform", "retained_sources", "automatic", "resolved_at"],
  "additionalProperties": false
}`

const precedenceRuleSetSchema = `{
  "type": "object",
  "title": "PrecedenceRuleSet",
  "properties": {
    "rule_id": {"type": "string"},
    "tenant_id": {"type": "string"},
    "athlete_id": {"type": "string"},
    "rule_name": {"type": "string"},
    "platform_precedence": {"type": "object", "additionalProperties": {"type": "integer"}},
    "created_at": {"type": "string", "format": "date-time"}
  },
  "required": ["rule_id", "tenant_id", "athlete_id", "rule_name", "platform_precedence", "created_at"],
  "additionalProperties": false
}`
