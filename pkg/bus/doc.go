// Package bus is the publish/subscribe transport between the controller and
// its recording modules.
//
// Client is the narrow surface the rest of the system depends on. Two
// implementations exist:
//
//   - MQTTClient talks to an MQTT broker. Sessions that drop are restored by a
//     connection.Supervisor and every active subscription is renewed.
//   - Broker is an in-process broker for tests and single-binary setups. It can
//     duplicate or drop messages to exercise at-least-once handling.
//
// Delivery is at-least-once with no ordering guarantee across topics.
// Patterns use MQTT wildcards: "+" matches one level, "#" matches the rest.
package bus
