package bpjson

// schemaDoc is a condensed JSON Schema for the bp.json document of §4.9.
// It covers the fields this package's procedural checks don't already
// enforce (required top-level keys, org shape, node list shape) — type
// and shape errors surface here, domain-specific checks (social handles,
// email MX records) run separately in bpjson.go.
const schemaDoc = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "$id": "https://poplexity.example/schema/bp.json",
  "type": "object",
  "required": ["producer_account_name", "producer_public_key", "org", "nodes"],
  "properties": {
    "producer_account_name": {"type": "string", "minLength": 1, "maxLength": 13},
    "producer_public_key": {"type": "string", "minLength": 1},
    "org": {
      "type": "object",
      "required": ["candidate_name", "location"],
      "properties": {
        "candidate_name": {"type": "string", "minLength": 1},
        "website": {"type": "string"},
        "code_of_conduct": {"type": "string"},
        "ownership_disclosure": {"type": "string"},
        "email": {"type": "string"},
        "branding": {
          "type": "object",
          "properties": {
            "logo_256": {"type": "string"},
            "logo_1024": {"type": "string"},
            "logo_svg": {"type": "string"}
          }
        },
        "location": {
          "type": "object",
          "required": ["name", "country", "latitude", "longitude"],
          "properties": {
            "name": {"type": "string"},
            "country": {"type": "string"},
            "latitude": {"type": "number"},
            "longitude": {"type": "number"}
          }
        },
        "social": {
          "type": "object",
          "additionalProperties": {"type": "string"}
        }
      }
    },
    "nodes": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["node_type"],
        "properties": {
          "location": {"type": "object"},
          "node_type": {
            "type": "array",
            "items": {"type": "string", "enum": ["producer", "full", "query", "seed", "bridge"]}
          },
          "p2p_endpoint": {"type": "string"},
          "api_endpoint": {"type": "string"},
          "ssl_endpoint": {"type": "string"}
        }
      }
    }
  }
}`
